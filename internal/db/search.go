package db

// Scorer names accepted by FT.SEARCH SCORER.
const (
	ScorerBM25    = "BM25"
	ScorerBM25STD = "BM25STD"
	ScorerTFIDF   = "TFIDF"
)

// TextQuery is the input for a scored full-text search.
type TextQuery struct {
	IndexName    string
	Field        string   // TEXT field to match; empty searches all TEXT fields
	Terms        []string // OR-ed together
	Filter       string   // raw FT pre-filter, e.g. "@lang:{en}"
	Scorer       string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

package domain

// SearchHit is a single document returned by a searcher.
type SearchHit struct {
	DocID    string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Contents returns the content fields of hits, in order.
func Contents(hits []SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Content
	}
	return out
}

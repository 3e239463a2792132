package domain

import "fmt"

// QueryItem is a single query to reformulate. Immutable once constructed.
type QueryItem struct {
	qid  string
	text string
}

// NewQueryItem creates a query item. The qid must be non-empty.
func NewQueryItem(qid, text string) (QueryItem, error) {
	if qid == "" {
		return QueryItem{}, Configurationf("query id is required")
	}
	return QueryItem{qid: qid, text: text}, nil
}

// MustQueryItem creates a query item or panics. Intended for literals in tests and examples.
func MustQueryItem(qid, text string) QueryItem {
	q, err := NewQueryItem(qid, text)
	if err != nil {
		panic(err)
	}
	return q
}

// QID returns the query identifier.
func (q QueryItem) QID() string { return q.qid }

// Text returns the query text.
func (q QueryItem) Text() string { return q.text }

// ValidateUniqueQIDs fails fast on duplicate qids, which would make result mapping ambiguous.
func ValidateUniqueQIDs(queries []QueryItem) error {
	seen := make(map[string]int, len(queries))
	for i, q := range queries {
		if q.qid == "" {
			return Configurationf("query at index %d has an empty qid", i)
		}
		if j, ok := seen[q.qid]; ok {
			return fmt.Errorf("%w: duplicate qid %q at index %d and %d", ErrConfiguration, q.qid, j, i)
		}
		seen[q.qid] = i
	}
	return nil
}

// Texts returns the query texts in input order.
func Texts(queries []QueryItem) []string {
	out := make([]string, len(queries))
	for i, q := range queries {
		out[i] = q.text
	}
	return out
}

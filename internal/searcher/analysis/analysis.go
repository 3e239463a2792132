// Package analysis holds the lexical analysis shared by the keyword searchers.
package analysis

import (
	"strings"
	"unicode"
)

// englishStopwords is the Lucene EnglishAnalyzer default stop set.
var englishStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "no": {},
	"not": {}, "of": {}, "on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"will": {}, "with": {},
}

// IsStopword reports whether the lower-cased token is an English stopword.
func IsStopword(tok string) bool {
	_, ok := englishStopwords[tok]
	return ok
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit. Stopwords are dropped when dropStopwords is set.
func Tokenize(text string, dropStopwords bool) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if !dropStopwords {
		return fields
	}
	out := fields[:0]
	for _, f := range fields {
		if !IsStopword(f) {
			out = append(out, f)
		}
	}
	return out
}

// TermCounts tokenizes text and counts occurrences per term.
func TermCounts(text string, dropStopwords bool) map[string]int {
	toks := Tokenize(text, dropStopwords)
	out := make(map[string]int, len(toks))
	for _, t := range toks {
		out[t]++
	}
	return out
}

// Unique returns the distinct tokens in first-seen order.
func Unique(toks []string) []string {
	seen := make(map[string]struct{}, len(toks))
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Package dataset reads query sets, corpora and pre-retrieved contexts, and
// writes reformulation results in the TSV layouts downstream retrieval tools consume.
package dataset

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmpty is returned when a file yields no usable records.
var ErrEmpty = errors.New("no records")

// Format names a query file layout.
type Format string

// Supported query file layouts.
const (
	FormatTSV   Format = "tsv"
	FormatJSONL Format = "jsonl"
)

var spaceRun = regexp.MustCompile(`\s+`)

// CleanText flattens generated text onto a single TSV-safe line: newlines and
// backslashes become spaces, whitespace runs collapse, surrounding quotes go.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.NewReplacer("\n", " ", "\r", " ", "\\", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, `'`)
	return s
}

package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const maxLineBytes = 16 << 20

// Document is one corpus entry.
type Document struct {
	ID      string
	Content string
}

// CorpusOptions select the id field and the content fields of a JSONL corpus.
type CorpusOptions struct {
	IDField string
	// AnswerKeys are joined with tabs, in order, skipping absent fields.
	AnswerKeys []string
}

// SplitAnswerKey splits a pipe-separated field list ("title|text").
func SplitAnswerKey(s string) []string {
	var out []string
	for _, k := range strings.Split(s, "|") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ReadCorpus parses a JSONL corpus file, gzipped when the name ends in ".gz".
// Malformed lines and lines without an id are skipped with a warning.
func ReadCorpus(path string, opts CorpusOptions, logger *zap.Logger) ([]Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip corpus: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	docs, err := DecodeCorpus(r, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return docs, nil
}

// DecodeCorpus reads JSONL corpus records from r.
func DecodeCorpus(r io.Reader, opts CorpusOptions, logger *zap.Logger) ([]Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		docs    []Document
		line    int
		skipped int
		empty   int
	)
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			skipped++
			logger.Warn("skipping malformed corpus line", zap.Int("line", line), zap.Error(err))
			continue
		}
		id := recordID(rec, opts.IDField)
		if id == "" {
			skipped++
			logger.Warn("skipping corpus line without id", zap.Int("line", line))
			continue
		}
		content := joinFields(rec, opts.AnswerKeys)
		if content == "" {
			empty++
		}
		docs = append(docs, Document{ID: id, Content: content})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	if len(docs) == 0 {
		return nil, ErrEmpty
	}
	if skipped > 0 || empty > 0 {
		logger.Warn("corpus loaded with gaps", zap.Int("skipped", skipped), zap.Int("empty_content", empty))
	}
	return docs, nil
}

// recordID reads the id field, falling back to the usual corpus conventions.
func recordID(rec map[string]any, idField string) string {
	for _, key := range []string{idField, "id", "docid", "_id"} {
		if key == "" {
			continue
		}
		switch v := rec[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return formatNumber(v)
		}
	}
	return ""
}

func joinFields(rec map[string]any, keys []string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\t")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

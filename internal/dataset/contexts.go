package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// ContextRecord is one line of a contexts file.
type ContextRecord struct {
	QID      string    `json:"qid"`
	Contexts []string  `json:"contexts"`
	DocIDs   []string  `json:"docids,omitempty"`
	Scores   []float64 `json:"scores,omitempty"`
}

// LoadContexts reads a contexts JSONL file into qid → hits.
func LoadContexts(path string, logger *zap.Logger) (map[string][]domain.SearchHit, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open contexts: %w", err)
	}
	defer f.Close()

	out, err := DecodeContexts(f, logger)
	if err != nil {
		return nil, fmt.Errorf("contexts %s: %w", path, err)
	}
	return out, nil
}

// DecodeContexts reads {"qid": ..., "contexts": [...]} lines. Optional
// "docids" and "scores" arrays are attached when their length matches.
// A repeated qid fails the whole file.
func DecodeContexts(r io.Reader, logger *zap.Logger) (map[string][]domain.SearchHit, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	out := make(map[string][]domain.SearchHit)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec struct {
			QID      any       `json:"qid"`
			Contexts []any     `json:"contexts"`
			DocIDs   []any     `json:"docids"`
			Scores   []float64 `json:"scores"`
		}
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logger.Warn("skipping invalid contexts line", zap.Int("line", line), zap.Error(err))
			continue
		}
		qid := scalarString(rec.QID)
		if qid == "" || rec.Contexts == nil {
			logger.Warn("skipping contexts line without qid or contexts", zap.Int("line", line))
			continue
		}
		if _, dup := out[qid]; dup {
			return nil, domain.Configurationf("line %d: duplicate qid %q", line, qid)
		}
		hits := make([]domain.SearchHit, len(rec.Contexts))
		for i, c := range rec.Contexts {
			hits[i] = domain.SearchHit{Content: scalarString(c)}
			if len(rec.DocIDs) == len(rec.Contexts) {
				hits[i].DocID = scalarString(rec.DocIDs[i])
			}
			if len(rec.Scores) == len(rec.Contexts) {
				hits[i].Score = rec.Scores[i]
			}
		}
		out[qid] = hits
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

// WriteContexts writes one JSON line per query, in query order.
func WriteContexts(w io.Writer, queries []domain.QueryItem, hits [][]domain.SearchHit) error {
	if len(queries) != len(hits) {
		return fmt.Errorf("%d queries but %d hit lists", len(queries), len(hits))
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, q := range queries {
		rec := ContextRecord{
			QID:      q.QID(),
			Contexts: make([]string, len(hits[i])),
			DocIDs:   make([]string, len(hits[i])),
			Scores:   make([]float64, len(hits[i])),
		}
		for j, h := range hits[i] {
			rec.Contexts[j] = h.Content
			rec.DocIDs[j] = h.DocID
			rec.Scores[j] = h.Score
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode %s: %w", q.QID(), err)
		}
	}
	return bw.Flush()
}

package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// QueryOptions describe where the qid and the text live in a query file.
type QueryOptions struct {
	Format   Format
	QIDCol   int
	QueryCol int
	QIDKey   string
	QueryKey string
}

// DefaultQueryOptions reads "qid<TAB>text" TSV.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Format: FormatTSV, QIDCol: 0, QueryCol: 1, QIDKey: "qid", QueryKey: "query"}
}

func (o QueryOptions) withDefaults() QueryOptions {
	d := DefaultQueryOptions()
	if o.Format == "" {
		o.Format = d.Format
	}
	if o.QIDCol == 0 && o.QueryCol == 0 {
		o.QueryCol = d.QueryCol
	}
	if o.QIDKey == "" {
		o.QIDKey = d.QIDKey
	}
	if o.QueryKey == "" {
		o.QueryKey = d.QueryKey
	}
	return o
}

// LoadQueries reads a query file.
func LoadQueries(path string, opts QueryOptions, logger *zap.Logger) ([]domain.QueryItem, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer f.Close()

	items, err := DecodeQueries(f, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("queries %s: %w", path, err)
	}
	return items, nil
}

// DecodeQueries reads queries from r. Rows with missing columns or keys and
// rows with empty text are skipped with a warning.
func DecodeQueries(r io.Reader, opts QueryOptions, logger *zap.Logger) ([]domain.QueryItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	switch opts.Format {
	case FormatTSV:
		return decodeQueriesTSV(r, opts, logger)
	case FormatJSONL:
		return decodeQueriesJSONL(r, opts, logger)
	default:
		return nil, domain.Configurationf("unsupported query format %q, use tsv or jsonl", opts.Format)
	}
}

func decodeQueriesTSV(r io.Reader, opts QueryOptions, logger *zap.Logger) ([]domain.QueryItem, error) {
	if opts.QIDCol < 0 || opts.QueryCol < 0 {
		return nil, domain.Configurationf("column indexes must be non-negative")
	}
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	need := max(opts.QIDCol, opts.QueryCol)
	var (
		items            []domain.QueryItem
		malformed, empty int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tsv: %w", err)
		}
		if len(row) <= need {
			malformed++
			continue
		}
		qid := strings.TrimSpace(row[opts.QIDCol])
		text := strings.TrimSpace(row[opts.QueryCol])
		if qid == "" || text == "" {
			empty++
			continue
		}
		items = append(items, domain.MustQueryItem(qid, text))
	}
	return finishQueries(items, malformed, empty, logger)
}

func decodeQueriesJSONL(r io.Reader, opts QueryOptions, logger *zap.Logger) ([]domain.QueryItem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		items            []domain.QueryItem
		malformed, empty int
		line             int
	)
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			malformed++
			logger.Warn("skipping invalid json line", zap.Int("line", line), zap.Error(err))
			continue
		}
		qidRaw, okID := rec[opts.QIDKey]
		textRaw, okText := rec[opts.QueryKey]
		if !okID || !okText {
			malformed++
			continue
		}
		qid := scalarString(qidRaw)
		text := strings.TrimSpace(scalarString(textRaw))
		if qid == "" || text == "" {
			empty++
			continue
		}
		items = append(items, domain.MustQueryItem(qid, text))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return finishQueries(items, malformed, empty, logger)
}

func finishQueries(items []domain.QueryItem, malformed, empty int, logger *zap.Logger) ([]domain.QueryItem, error) {
	if malformed > 0 {
		logger.Warn("skipped malformed query rows", zap.Int("count", malformed))
	}
	if empty > 0 {
		logger.Warn("skipped empty queries", zap.Int("count", empty))
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	return items, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}

// WriteQueries writes queries as "qid<TAB>text" lines.
func WriteQueries(w io.Writer, queries []domain.QueryItem) error {
	tw := newTSVWriter(w)
	for _, q := range queries {
		tw.row(q.QID(), CleanText(q.Text()))
	}
	return tw.flush()
}

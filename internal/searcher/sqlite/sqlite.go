// Package sqlite is a full-text searcher over an SQLite FTS5 table, ranked
// with the built-in bm25() function.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/searcher/analysis"
)

// Name is the registry key.
const Name = "sqlite"

// Config are the searcher options.
type Config struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
	// Corpus is a JSONL corpus loaded into the table when it is empty.
	Corpus    string `mapstructure:"corpus"`
	IDField   string `mapstructure:"id_field"`
	AnswerKey string `mapstructure:"answer_key"`
	Tokenizer string `mapstructure:"tokenizer"`
	Stopwords *bool  `mapstructure:"stopwords"`
}

// DefaultTokenizer stems English with the FTS5 porter wrapper.
const DefaultTokenizer = "porter unicode61"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "docs"
	}
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.AnswerKey == "" {
		c.AnswerKey = "contents"
	}
	if c.Tokenizer == "" {
		c.Tokenizer = DefaultTokenizer
	}
	if c.Stopwords == nil {
		on := true
		c.Stopwords = &on
	}
}

// Validate checks the options.
func (c *Config) Validate() error {
	if c.Path == "" {
		return domain.Configurationf("sqlite: path is required")
	}
	if !tableName.MatchString(c.Table) {
		return domain.Configurationf("sqlite: invalid table name %q", c.Table)
	}
	if strings.ContainsAny(c.Tokenizer, `'";`) {
		return domain.Configurationf("sqlite: invalid tokenizer %q", c.Tokenizer)
	}
	return nil
}

// Searcher queries one FTS5 table. Safe for concurrent use.
type Searcher struct {
	cfg    Config
	db     *sql.DB
	logger *zap.Logger
}

var _ searcher.Searcher = (*Searcher)(nil)

// New opens the database, creates the FTS5 table when missing and loads the
// configured corpus into an empty table.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Searcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	s := &Searcher{cfg: cfg, db: db, logger: logger.With(zap.String("table", cfg.Table))}

	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.Corpus != "" {
		n, err := s.count(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		if n == 0 {
			docs, err := dataset.ReadCorpus(cfg.Corpus, dataset.CorpusOptions{
				IDField:    cfg.IDField,
				AnswerKeys: dataset.SplitAnswerKey(cfg.AnswerKey),
			}, logger)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("sqlite: %w", err)
			}
			if err := s.Load(ctx, docs); err != nil {
				db.Close()
				return nil, err
			}
		}
	}
	return s, nil
}

// Register adds the searcher to reg.
func Register(reg *searcher.Registry) error {
	return reg.Register(Name, func(args searcher.Args) (searcher.Searcher, error) {
		var cfg Config
		if err := searcher.DecodeKwargs(Name, args.Kwargs, &cfg); err != nil {
			return nil, err
		}
		return New(context.Background(), cfg, args.Logger)
	})
}

func (s *Searcher) ensureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(doc_id UNINDEXED, content, tokenize='%s')`,
		s.cfg.Table, s.cfg.Tokenizer,
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

func (s *Searcher) count(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.cfg.Table))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Load inserts docs in a single transaction.
func (s *Searcher) Load(ctx context.Context, docs []dataset.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (doc_id, content) VALUES (?, ?)`, s.cfg.Table))
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	s.logger.Info("loaded corpus", zap.Int("docs", len(docs)))
	return nil
}

// matchExpr ORs the quoted query terms. Empty when nothing survives tokenizing.
func matchExpr(query string, dropStopwords bool) string {
	terms := analysis.Unique(analysis.Tokenize(query, dropStopwords))
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Search implements searcher.Searcher. FTS5 bm25() is lower-is-better, so
// scores are negated to keep the descending-score contract.
func (s *Searcher) Search(ctx context.Context, query string, k int, opts ...searcher.Option) ([]domain.SearchHit, error) {
	if err := searcher.ValidateK(k); err != nil {
		return nil, err
	}
	o := searcher.Apply(opts...)

	expr := matchExpr(query, *s.cfg.Stopwords)
	if expr == "" {
		return []domain.SearchHit{}, nil
	}

	q := fmt.Sprintf(
		`SELECT doc_id, content, bm25(%[1]s) AS score FROM %[1]s WHERE %[1]s MATCH ? ORDER BY score, rowid LIMIT ?`,
		s.cfg.Table,
	)
	rows, err := s.db.QueryContext(ctx, q, expr, k)
	if err != nil {
		return nil, fmt.Errorf("sqlite search: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0, k)
	for rows.Next() {
		var (
			h    domain.SearchHit
			rank float64
		)
		if err := rows.Scan(&h.DocID, &h.Content, &rank); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}
	return o.Filter(hits), nil
}

// BatchSearch implements searcher.Searcher on the shared worker pool.
func (s *Searcher) BatchSearch(
	ctx context.Context, queries []string, k, numThreads int, opts ...searcher.Option,
) ([][]domain.SearchHit, error) {
	return searcher.BatchFallback(ctx, s, queries, k, numThreads, opts...)
}

// Info implements searcher.Searcher.
func (s *Searcher) Info() map[string]any {
	return map[string]any{
		searcher.InfoName:    "SQLiteFTS5Searcher",
		searcher.InfoBackend: Name,
		"path":               s.cfg.Path,
		"table":              s.cfg.Table,
		"tokenizer":          s.cfg.Tokenizer,
	}
}

// Close closes the database.
func (s *Searcher) Close() error {
	return s.db.Close()
}

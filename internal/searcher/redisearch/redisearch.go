// Package redisearch searches a corpus indexed in Redis 8 / Redis Stack with
// FT.SEARCH scoring (BM25 by default).
package redisearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/db"
	"github.com/kailas-cloud/queryforge/internal/db/redis"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/searcher/analysis"
)

// Name is the registry key.
const Name = "redisearch"

// Config are the searcher options.
type Config struct {
	Addrs        []string      `mapstructure:"addrs"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Index        string        `mapstructure:"index"`
	Prefix       string        `mapstructure:"prefix"`
	IDField      string        `mapstructure:"id_field"`
	ContentField string        `mapstructure:"content_field"`
	Scorer       string        `mapstructure:"scorer"`
	Filter       string        `mapstructure:"filter"`
	Stopwords    *bool         `mapstructure:"stopwords"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
}

// Defaults.
const (
	DefaultPrefix       = "doc:"
	DefaultIDField      = "doc_id"
	DefaultContentField = "content"
	DefaultWaitTimeout  = 5 * time.Second
)

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if len(c.Addrs) == 0 {
		c.Addrs = []string{"localhost:6379"}
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.IDField == "" {
		c.IDField = DefaultIDField
	}
	if c.ContentField == "" {
		c.ContentField = DefaultContentField
	}
	if c.Scorer == "" {
		c.Scorer = db.ScorerBM25
	}
	if c.Stopwords == nil {
		on := true
		c.Stopwords = &on
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
}

// Validate checks the options.
func (c *Config) Validate() error {
	if !db.IsValidIdentifier(c.Index) {
		return domain.Configurationf("redisearch: index must match [a-zA-Z0-9_:-]+, got %q", c.Index)
	}
	switch strings.ToUpper(c.Scorer) {
	case db.ScorerBM25, db.ScorerBM25STD, db.ScorerTFIDF:
	default:
		return domain.Configurationf("redisearch: unsupported scorer %q", c.Scorer)
	}
	return nil
}

// Store is what the searcher needs from the database.
type Store interface {
	db.TextSearcher
	db.IndexManager
	Close()
}

// Searcher runs FT.SEARCH queries against one index.
type Searcher struct {
	cfg    Config
	store  Store
	logger *zap.Logger
}

var _ searcher.Searcher = (*Searcher)(nil)

// New connects to Redis and checks that the index exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Searcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := redis.NewStore(redis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redisearch: %w", err)
	}
	if err := store.WaitForReady(ctx, cfg.WaitTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("redisearch: %w", err)
	}
	s, err := NewWithStore(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a searcher over an existing store.
func NewWithStore(ctx context.Context, cfg Config, store Store, logger *zap.Logger) (*Searcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Scorer = strings.ToUpper(cfg.Scorer)

	ok, err := store.IndexExists(ctx, cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("redisearch: check index: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redisearch: %q: %w", cfg.Index, db.ErrIndexNotFound)
	}
	return &Searcher{cfg: cfg, store: store, logger: logger}, nil
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

// Search implements searcher.Searcher. The per-call extra "filter" replaces
// the configured FT pre-filter.
func (s *Searcher) Search(ctx context.Context, query string, k int, opts ...searcher.Option) ([]domain.SearchHit, error) {
	if err := searcher.ValidateK(k); err != nil {
		return nil, err
	}
	o := searcher.Apply(opts...)

	terms := analysis.Unique(analysis.Tokenize(query, *s.cfg.Stopwords))
	if len(terms) == 0 {
		return []domain.SearchHit{}, nil
	}

	res, err := s.store.SearchText(ctx, &db.TextQuery{
		IndexName:    s.cfg.Index,
		Field:        s.cfg.ContentField,
		Terms:        terms,
		Filter:       o.String("filter", s.cfg.Filter),
		Scorer:       s.cfg.Scorer,
		TopK:         k,
		ReturnFields: []string{s.cfg.IDField, s.cfg.ContentField},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, fmt.Errorf("redisearch: %q: %w", s.cfg.Index, err)
		}
		return nil, fmt.Errorf("redisearch search: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := e.Fields[s.cfg.IDField]
		if id == "" {
			id = strings.TrimPrefix(e.Key, s.cfg.Prefix)
		}
		hits = append(hits, domain.SearchHit{
			DocID:    id,
			Score:    e.Score,
			Content:  e.Fields[s.cfg.ContentField],
			Metadata: map[string]any{"key": e.Key},
		})
	}
	return o.Filter(searcher.SortHits(hits, k)), nil
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
		searcher.InfoName:    "RediSearchSearcher",
		searcher.InfoBackend: Name,
		"index":              s.cfg.Index,
		"scorer":             s.cfg.Scorer,
		"content_field":      s.cfg.ContentField,
		"filter":             s.cfg.Filter,
	}
}

// Close releases the connection.
func (s *Searcher) Close() error {
	s.store.Close()
	return nil
}

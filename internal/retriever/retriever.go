// Package retriever turns single and batch queries into ranked hits through
// one searcher adapter.
package retriever

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
)

// Defaults for retrieval calls.
const (
	DefaultK          = 10
	DefaultNumThreads = 1
)

// Config selects the searcher: either an existing instance or a registered
// type name with its options.
type Config struct {
	Searcher       searcher.Searcher
	SearcherType   string
	SearcherKwargs map[string]any
	// Registry resolves SearcherType; defaults to searcher.Searchers.
	Registry *searcher.Registry
	// Budget is handed to searchers that embed queries.
	Budget searcher.TokenBudget
	Logger *zap.Logger
}

// Retriever wraps a searcher. Safe for concurrent use when the searcher is.
type Retriever struct {
	searcher searcher.Searcher
	owned    bool
	logger   *zap.Logger
}

// New builds a retriever from exactly one of Searcher or SearcherType.
func New(cfg Config) (*Retriever, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch {
	case cfg.Searcher == nil && cfg.SearcherType == "":
		return nil, domain.Configurationf("retriever needs a searcher instance or a searcher type")
	case cfg.Searcher != nil && cfg.SearcherType != "":
		return nil, domain.Configurationf("retriever takes a searcher instance or a searcher type, not both")
	case cfg.Searcher != nil:
		if len(cfg.SearcherKwargs) > 0 {
			return nil, domain.Configurationf("searcher kwargs given without a searcher type")
		}
		return &Retriever{searcher: cfg.Searcher, logger: logger}, nil
	}

	reg := cfg.Registry
	if reg == nil {
		reg = searcher.Searchers
	}
	s, err := reg.Create(cfg.SearcherType, searcher.Args{
		Kwargs: cfg.SearcherKwargs,
		Budget: cfg.Budget,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create searcher %q: %w", cfg.SearcherType, err)
	}
	logger.Debug("created searcher", zap.String("type", cfg.SearcherType), zap.Any("info", s.Info()))
	return &Retriever{
		searcher: searcher.NewInstrumented(s, cfg.SearcherType, logger),
		owned:    true,
		logger:   logger,
	}, nil
}

// Retrieve returns the searcher's hits for query, in the searcher's order.
// k <= 0 means DefaultK.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, opts ...searcher.Option) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = DefaultK
	}
	hits, err := r.searcher.Search(ctx, query, k, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return hits, nil
}

// RetrieveBatch returns one hit list per query, index-aligned with queries.
// One failing query fails the call. k <= 0 means DefaultK and
// numThreads <= 0 means DefaultNumThreads.
func (r *Retriever) RetrieveBatch(
	ctx context.Context, queries []string, k, numThreads int, opts ...searcher.Option,
) ([][]domain.SearchHit, error) {
	if k <= 0 {
		k = DefaultK
	}
	if numThreads <= 0 {
		numThreads = DefaultNumThreads
	}
	if len(queries) == 0 {
		return [][]domain.SearchHit{}, nil
	}
	out, err := r.searcher.BatchSearch(ctx, queries, k, numThreads, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieve batch: %w", err)
	}
	if len(out) != len(queries) {
		return nil, fmt.Errorf("searcher returned %d result lists for %d queries", len(out), len(queries))
	}
	return out, nil
}

// Info describes the wrapped searcher.
func (r *Retriever) Info() map[string]any {
	return r.searcher.Info()
}

// Searcher returns the wrapped searcher.
func (r *Retriever) Searcher() searcher.Searcher {
	return r.searcher
}

// Close releases the searcher when the retriever created it.
func (r *Retriever) Close() error {
	if !r.owned {
		return nil
	}
	if c, ok := r.searcher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close searcher: %w", err)
		}
	}
	return nil
}

package searcher

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// SingleSearcher is the part of Searcher that BatchFallback needs.
type SingleSearcher interface {
	Search(ctx context.Context, query string, k int, opts ...Option) ([]domain.SearchHit, error)
}

// ValidateK rejects non-positive result sizes.
func ValidateK(k int) error {
	if k <= 0 {
		return domain.Configurationf("k must be positive, got %d", k)
	}
	return nil
}

// Threads clamps a requested worker count to [1, n].
func Threads(numThreads, n int) int {
	if numThreads < 1 {
		numThreads = 1
	}
	if n > 0 && numThreads > n {
		numThreads = n
	}
	return numThreads
}

// BatchFallback runs Search for every query on a pool of numThreads workers.
// Each worker writes only its own output slot. The first error cancels the
// remaining queries and fails the call.
func BatchFallback(
	ctx context.Context, s SingleSearcher, queries []string, k, numThreads int, opts ...Option,
) ([][]domain.SearchHit, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	out := make([][]domain.SearchHit, len(queries))
	if len(queries) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Threads(numThreads, len(queries)))

	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			hits, err := s.Search(gctx, q, k, opts...)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch search: %w", err)
	}
	return out, nil
}

// SortHits orders hits by descending score, keeping input order for ties,
// and truncates to k.
func SortHits(hits []domain.SearchHit, k int) []domain.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

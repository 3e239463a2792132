package searcher

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/metrics"
)

// Instrumented decorates a Searcher with metrics and debug logging.
type Instrumented struct {
	inner  Searcher
	name   string
	logger *zap.Logger
}

// NewInstrumented wraps inner under the registered name.
func NewInstrumented(inner Searcher, name string, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{inner: inner, name: name, logger: logger.With(zap.String("searcher", name))}
}

// Search implements Searcher.
func (s *Instrumented) Search(ctx context.Context, query string, k int, opts ...Option) ([]domain.SearchHit, error) {
	start := time.Now()
	hits, err := s.inner.Search(ctx, query, k, opts...)
	s.observe("search", start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	metrics.SearchHits.WithLabelValues(s.name).Observe(float64(len(hits)))
	s.logger.Debug("search", zap.Int("k", k), zap.Int("hits", len(hits)), zap.Duration("took", time.Since(start)))
	return hits, nil
}

// BatchSearch implements Searcher.
func (s *Instrumented) BatchSearch(
	ctx context.Context, queries []string, k, numThreads int, opts ...Option,
) ([][]domain.SearchHit, error) {
	start := time.Now()
	out, err := s.inner.BatchSearch(ctx, queries, k, numThreads, opts...)
	s.observe("batch", start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	for _, hits := range out {
		metrics.SearchHits.WithLabelValues(s.name).Observe(float64(len(hits)))
	}
	s.logger.Debug("batch search",
		zap.Int("queries", len(queries)),
		zap.Int("k", k),
		zap.Int("threads", numThreads),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

// Info implements Searcher.
func (s *Instrumented) Info() map[string]any { return s.inner.Info() }

// Close closes the wrapped searcher when it holds resources.
func (s *Instrumented) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Unwrap returns the decorated searcher.
func (s *Instrumented) Unwrap() Searcher { return s.inner }

func (s *Instrumented) observe(op string, start time.Time, err error) {
	metrics.SearchRequestsTotal.WithLabelValues(s.name, op, metrics.Status(err)).Inc()
	metrics.SearchDuration.WithLabelValues(s.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn(op+" failed", zap.Error(err))
	}
}

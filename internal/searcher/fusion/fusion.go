// Package fusion merges the rankings of several searchers with Reciprocal
// Rank Fusion.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
)

// Name is the registry key.
const Name = "fusion"

// DefaultRRFK is the rank constant from Cormack et al. (2009).
const DefaultRRFK = 60

// Member is one fused searcher.
type Member struct {
	Type   string         `mapstructure:"type"`
	Kwargs map[string]any `mapstructure:"kwargs"`
	// Weight scales the member's reciprocal ranks. Zero means 1.
	Weight float64 `mapstructure:"weight"`
}

// Config are the searcher options.
type Config struct {
	Searchers []Member `mapstructure:"searchers"`
	RRFK      int      `mapstructure:"rrf_k"`
	// Depth is how many hits each member contributes; zero means the
	// requested k.
	Depth int `mapstructure:"depth"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.RRFK <= 0 {
		c.RRFK = DefaultRRFK
	}
	for i := range c.Searchers {
		if c.Searchers[i].Weight == 0 {
			c.Searchers[i].Weight = 1
		}
	}
}

// Validate checks the options.
func (c *Config) Validate() error {
	if len(c.Searchers) < 2 {
		return domain.Configurationf("fusion: at least two searchers are required, got %d", len(c.Searchers))
	}
	for i, m := range c.Searchers {
		if m.Type == "" {
			return domain.Configurationf("fusion: searchers[%d].type is required", i)
		}
		if m.Weight < 0 {
			return domain.Configurationf("fusion: searchers[%d].weight must not be negative", i)
		}
	}
	if c.Depth < 0 {
		return domain.Configurationf("fusion: depth must not be negative, got %d", c.Depth)
	}
	return nil
}

type member struct {
	name   string
	weight float64
	inner  searcher.Searcher
}

// Searcher fans a query out to its members and fuses their rankings.
type Searcher struct {
	cfg     Config
	members []member
}

var _ searcher.Searcher = (*Searcher)(nil)

// New builds the member searchers from reg. Members already built are closed
// when a later one fails.
func New(cfg Config, reg *searcher.Registry, budget searcher.TokenBudget, logger *zap.Logger) (*Searcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Searcher{cfg: cfg, members: make([]member, 0, len(cfg.Searchers))}
	for i, m := range cfg.Searchers {
		inner, err := reg.Create(m.Type, searcher.Args{Kwargs: m.Kwargs, Budget: budget, Logger: logger})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("fusion: searchers[%d] %s: %w", i, m.Type, err)
		}
		s.members = append(s.members, member{name: m.Type, weight: m.Weight, inner: inner})
	}
	return s, nil
}

// Register adds the searcher to reg. Members are resolved from the same registry.
func Register(reg *searcher.Registry) error {
	return reg.Register(Name, func(args searcher.Args) (searcher.Searcher, error) {
		var cfg Config
		if err := searcher.DecodeKwargs(Name, args.Kwargs, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, reg, args.Budget, args.Logger)
	})
}

// Search implements searcher.Searcher. Options are passed to every member;
// the minimum score applies to the fused score.
func (s *Searcher) Search(ctx context.Context, query string, k int, opts ...searcher.Option) ([]domain.SearchHit, error) {
	if err := searcher.ValidateK(k); err != nil {
		return nil, err
	}
	o := searcher.Apply(opts...)
	depth := max(k, s.cfg.Depth)
	memberOpts := []searcher.Option{searcher.WithExtras(o.Extra)}

	lists := make([][]domain.SearchHit, len(s.members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range s.members {
		g.Go(func() error {
			hits, err := m.inner.Search(gctx, query, depth, memberOpts...)
			if err != nil {
				return fmt.Errorf("fusion member %s: %w", m.name, err)
			}
			lists[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fusion search: %w", err)
	}
	return o.Filter(s.fuse(lists, k)), nil
}

type fused struct {
	hit     domain.SearchHit
	score   float64
	sources []string
	first   int
}

// fuse scores each document by sum(weight / (rrf_k + rank)) over the lists it
// appears in. The first member's copy of a document wins; ties keep the
// order of first appearance.
func (s *Searcher) fuse(lists [][]domain.SearchHit, k int) []domain.SearchHit {
	merged := make(map[string]*fused)
	order := 0
	for i, hits := range lists {
		m := s.members[i]
		for rank, h := range hits {
			contrib := m.weight / float64(s.cfg.RRFK+rank+1)
			if f, ok := merged[h.DocID]; ok {
				f.score += contrib
				f.sources = append(f.sources, m.name)
				continue
			}
			merged[h.DocID] = &fused{hit: h, score: contrib, sources: []string{m.name}, first: order}
			order++
		}
	}

	all := make([]*fused, 0, len(merged))
	for _, f := range merged {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].first < all[j].first
	})
	if len(all) > k {
		all = all[:k]
	}

	out := make([]domain.SearchHit, len(all))
	for i, f := range all {
		meta := maps.Clone(f.hit.Metadata)
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["fused_from"] = f.sources
		out[i] = domain.SearchHit{DocID: f.hit.DocID, Score: f.score, Content: f.hit.Content, Metadata: meta}
	}
	return out
}

// BatchSearch implements searcher.Searcher on the shared worker pool.
func (s *Searcher) BatchSearch(
	ctx context.Context, queries []string, k, numThreads int, opts ...searcher.Option,
) ([][]domain.SearchHit, error) {
	return searcher.BatchFallback(ctx, s, queries, k, numThreads, opts...)
}

// Info implements searcher.Searcher.
func (s *Searcher) Info() map[string]any {
	members := make([]map[string]any, len(s.members))
	for i, m := range s.members {
		info := maps.Clone(m.inner.Info())
		info["weight"] = m.weight
		members[i] = info
	}
	return map[string]any{
		searcher.InfoName:    "RRFFusionSearcher",
		searcher.InfoBackend: Name,
		"rrf_k":              s.cfg.RRFK,
		"depth":              s.cfg.Depth,
		"searchers":          members,
	}
}

// Close closes every member that holds resources.
func (s *Searcher) Close() error {
	var errs []error
	for _, m := range s.members {
		if c, ok := m.inner.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", m.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

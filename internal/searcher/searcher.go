// Package searcher defines the retrieval-backend contract and the process-wide
// registry of searcher adapters.
package searcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/registry"
)

// Searcher ranks documents against query strings.
//
// Search returns at most k hits ordered by descending score. BatchSearch
// returns one hit list per query, index-aligned with queries regardless of
// numThreads. Info is side-effect free.
type Searcher interface {
	Search(ctx context.Context, query string, k int, opts ...Option) ([]domain.SearchHit, error)
	BatchSearch(ctx context.Context, queries []string, k, numThreads int, opts ...Option) ([][]domain.SearchHit, error)
	Info() map[string]any
}

// Args are the construction arguments handed to a searcher factory.
type Args struct {
	// Kwargs is the adapter-specific option bag, decoded with DecodeKwargs.
	Kwargs map[string]any
	// Budget is charged by adapters that call an embedding provider. May be nil.
	Budget TokenBudget
	Logger *zap.Logger
}

// TokenBudget gates and accounts provider calls made while searching.
type TokenBudget interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// Registry maps searcher type names to factories.
type Registry = registry.Registry[Args, Searcher]

// Factory builds a searcher from Args.
type Factory = registry.Factory[Args, Searcher]

// Searchers is the process-wide searcher registry. Built-in adapters are
// added by pipeline.Bootstrap.
var Searchers = NewRegistry()

// NewRegistry creates an empty searcher registry.
func NewRegistry() *Registry {
	return registry.New[Args, Searcher]("searcher")
}

// Info keys shared by the built-in adapters.
const (
	InfoName    = "name"
	InfoBackend = "backend"
)

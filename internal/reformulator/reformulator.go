// Package reformulator defines the reformulation capability, the shared Base
// that concrete methods build on, and the process-wide method registry.
package reformulator

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/llm"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/registry"
	"github.com/kailas-cloud/queryforge/internal/retriever"
)

// Reformulator rewrites queries, optionally grounded on retrieved contexts.
// Implementations keep no per-call state and are safe for concurrent use.
type Reformulator interface {
	Name() string
	Version() string
	RequiresContext() bool
	Reformulate(ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit) (domain.ReformulationResult, error)
	// ReformulateBatch returns one result per query, index-aligned, or an error.
	ReformulateBatch(ctx context.Context, queries []domain.QueryItem, opts BatchOptions) ([]domain.ReformulationResult, error)
	// Close releases the retriever the reformulator obtained, if any.
	Close() error
}

// BatchOptions tune ReformulateBatch.
type BatchOptions struct {
	// Contexts are pre-retrieved hits by qid. Queries without an entry are
	// retrieved through the attached retriever.
	Contexts map[string][]domain.SearchHit
	// NumThreads bounds concurrent generation; <= 0 means sequential.
	NumThreads int
}

// RetrieverProvider builds the retriever for a context-grounded method.
// It returns nil, nil when no searcher is configured.
type RetrieverProvider func() (*retriever.Retriever, error)

// Deps are the construction arguments handed to a method factory.
type Deps struct {
	LLM     llm.Client
	Prompts *prompt.Bank
	// Params is the method's option bag; unknown keys are rejected.
	Params map[string]any
	// LLMSettings carry caller overrides. A nil Temperature or zero MaxTokens
	// leaves the method's own default.
	LLMSettings llm.Settings
	Retriever   RetrieverProvider
	Logger      *zap.Logger
}

// Temperature returns the caller override or def.
func (d Deps) Temperature(def float64) float64 {
	if d.LLMSettings.Temperature != nil {
		return *d.LLMSettings.Temperature
	}
	return def
}

// MaxTokens returns the caller override or def.
func (d Deps) MaxTokens(def int) int {
	if d.LLMSettings.MaxTokens > 0 {
		return d.LLMSettings.MaxTokens
	}
	return def
}

// Registry maps method names to factories.
type Registry = registry.Registry[Deps, Reformulator]

// Factory builds a reformulator from Deps.
type Factory = registry.Factory[Deps, Reformulator]

// Methods is the process-wide method registry. Built-in methods are added by
// pipeline.Bootstrap.
var Methods = NewRegistry()

// NewRegistry creates an empty method registry.
func NewRegistry() *Registry {
	return registry.New[Deps, Reformulator]("method")
}

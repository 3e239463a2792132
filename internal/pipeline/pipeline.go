// Package pipeline is the composition root of the reformulation core: it
// registers the built-in methods and searchers and builds ready-to-run
// reformulators bound to a model.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/kwargs"
	"github.com/kailas-cloud/queryforge/internal/llm"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
	"github.com/kailas-cloud/queryforge/internal/reformulator/method"
	"github.com/kailas-cloud/queryforge/internal/registry"
	"github.com/kailas-cloud/queryforge/internal/retriever"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/searcher/bm25"
	"github.com/kailas-cloud/queryforge/internal/searcher/fusion"
	"github.com/kailas-cloud/queryforge/internal/searcher/qdrant"
	"github.com/kailas-cloud/queryforge/internal/searcher/redisearch"
	"github.com/kailas-cloud/queryforge/internal/searcher/sqlite"
)

// Params is a method option bag. The searcher keys below configure the
// retriever of context-grounded methods and never reach the method itself.
type Params = map[string]any

// Reserved Params keys.
const (
	ParamSearcherType   = "searcher_type"
	ParamSearcherKwargs = "searcher_kwargs"
)

var (
	bootstrapOnce sync.Once
	errBootstrap  error
)

// Bootstrap registers the built-in methods and searchers into the
// process-wide registries. Safe to call more than once.
func Bootstrap() error {
	bootstrapOnce.Do(func() {
		errBootstrap = RegisterBuiltins(reformulator.Methods, searcher.Searchers)
	})
	return errBootstrap
}

// RegisterBuiltins registers the built-in methods and searchers into the
// given registries.
func RegisterBuiltins(methods *reformulator.Registry, searchers *searcher.Registry) error {
	if err := method.RegisterBuiltins(methods); err != nil {
		return fmt.Errorf("register methods: %w", err)
	}
	for _, register := range []func(*searcher.Registry) error{
		bm25.Register,
		redisearch.Register,
		sqlite.Register,
		qdrant.Register,
		fusion.Register,
	} {
		if err := register(searchers); err != nil {
			return fmt.Errorf("register searchers: %w", err)
		}
	}
	return nil
}

// SearcherConfig names a registered searcher and its options.
type SearcherConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Kwargs map[string]any `yaml:"kwargs" json:"kwargs,omitempty"`
}

// Config wires a Pipeline.
type Config struct {
	// Prompts defaults to the built-in catalog.
	Prompts *prompt.Bank
	// LLM builds a client for a model name. Required.
	LLM llm.Factory
	// LLMSettings are caller sampling overrides; zero fields keep each method's defaults.
	LLMSettings llm.Settings
	// Searcher is used by context-grounded methods whose params name no searcher.
	Searcher SearcherConfig
	// Methods and Searchers default to the process-wide registries.
	Methods   *reformulator.Registry
	Searchers *searcher.Registry
	// EmbeddingBudget is charged by searchers that embed queries. May be nil.
	EmbeddingBudget searcher.TokenBudget
	Logger          *zap.Logger
}

// Pipeline creates reformulators. Safe for concurrent use.
type Pipeline struct {
	prompts   *prompt.Bank
	llm       llm.Factory
	settings  llm.Settings
	searcher  SearcherConfig
	methods   *reformulator.Registry
	searchers *searcher.Registry
	budget    searcher.TokenBudget
	logger    *zap.Logger
}

// New builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.LLM == nil {
		return nil, domain.Configurationf("pipeline needs an llm client factory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prompts := cfg.Prompts
	if prompts == nil {
		var err error
		if prompts, err = prompt.Default(); err != nil {
			return nil, fmt.Errorf("load built-in prompts: %w", err)
		}
	}
	methods := cfg.Methods
	if methods == nil {
		methods = reformulator.Methods
	}
	searchers := cfg.Searchers
	if searchers == nil {
		searchers = searcher.Searchers
	}
	return &Pipeline{
		prompts:   prompts,
		llm:       cfg.LLM,
		settings:  cfg.LLMSettings,
		searcher:  cfg.Searcher,
		methods:   methods,
		searchers: searchers,
		budget:    cfg.EmbeddingBudget,
		logger:    logger,
	}, nil
}

// Prompts returns the prompt bank.
func (p *Pipeline) Prompts() *prompt.Bank { return p.prompts }

// Methods returns the registered method names.
func (p *Pipeline) Methods() []string { return p.methods.Names() }

// Searchers returns the registered searcher names.
func (p *Pipeline) Searchers() []string { return p.searchers.Names() }

// CreateReformulator builds method bound to model. The searcher_type and
// searcher_kwargs params, or the configured default searcher, become the
// retriever of context-grounded methods; it is only built for those.
func (p *Pipeline) CreateReformulator(name, model string, params Params) (reformulator.Reformulator, error) {
	if !p.methods.Has(name) {
		return nil, &registry.UnknownKeyError{Kind: p.methods.Kind(), Name: name, Available: p.methods.Names()}
	}
	sc, rest, err := p.splitSearcherParams(params)
	if err != nil {
		return nil, err
	}
	client, err := p.llm(model)
	if err != nil {
		return nil, fmt.Errorf("llm client for %s: %w", name, err)
	}

	logger := p.logger.With(zap.String("method", name), zap.String("model", model))
	settings := p.settings
	settings.Model = model
	deps := reformulator.Deps{
		LLM:         client,
		Prompts:     p.prompts,
		Params:      rest,
		LLMSettings: settings,
		Retriever:   p.retrieverProvider(sc, logger),
		Logger:      logger,
	}
	r, err := p.methods.Create(name, deps)
	if err != nil {
		return nil, fmt.Errorf("create method %s: %w", name, err)
	}
	return r, nil
}

// NewRetriever builds a retriever over a registered searcher.
func (p *Pipeline) NewRetriever(sc SearcherConfig) (*retriever.Retriever, error) {
	if sc.Type == "" {
		sc = p.searcher
	}
	return p.newRetriever(sc, p.logger)
}

func (p *Pipeline) retrieverProvider(sc SearcherConfig, logger *zap.Logger) reformulator.RetrieverProvider {
	if sc.Type == "" {
		return nil
	}
	return func() (*retriever.Retriever, error) {
		return p.newRetriever(sc, logger)
	}
}

func (p *Pipeline) newRetriever(sc SearcherConfig, logger *zap.Logger) (*retriever.Retriever, error) {
	r, err := retriever.New(retriever.Config{
		SearcherType:   sc.Type,
		SearcherKwargs: sc.Kwargs,
		Registry:       p.searchers,
		Budget:         p.budget,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}
	return r, nil
}

// splitSearcherParams extracts the searcher keys from params. Without a
// searcher_type the configured default applies.
func (p *Pipeline) splitSearcherParams(params Params) (SearcherConfig, Params, error) {
	rest := kwargs.Without(params, ParamSearcherType, ParamSearcherKwargs)
	sc := p.searcher

	rawType, hasType := params[ParamSearcherType]
	rawKwargs, hasKwargs := params[ParamSearcherKwargs]
	if !hasType {
		if hasKwargs {
			return sc, nil, domain.Configurationf("%s given without %s", ParamSearcherKwargs, ParamSearcherType)
		}
		return sc, rest, nil
	}

	typ, ok := rawType.(string)
	if !ok || typ == "" {
		return sc, nil, domain.Configurationf("%s must be a non-empty string", ParamSearcherType)
	}
	sc = SearcherConfig{Type: typ}
	if hasKwargs && rawKwargs != nil {
		kw, ok := rawKwargs.(map[string]any)
		if !ok {
			return sc, nil, domain.Configurationf("%s must be a mapping, got %T", ParamSearcherKwargs, rawKwargs)
		}
		sc.Kwargs = kw
	}
	return sc, rest, nil
}

// RunOptions tune Run.
type RunOptions struct {
	// Contexts are pre-retrieved hits keyed by qid.
	Contexts   map[string][]domain.SearchHit
	NumThreads int
}

// Run creates the reformulator, reformulates queries in one batch and closes
// it. Results are index-aligned with queries.
func (p *Pipeline) Run(
	ctx context.Context, name, model string, params Params, queries []domain.QueryItem, opts RunOptions,
) ([]domain.ReformulationResult, error) {
	r, err := p.CreateReformulator(name, model, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			p.logger.Warn("close reformulator", zap.String("method", name), zap.Error(cerr))
		}
	}()

	start := time.Now()
	p.logger.Info("reformulating",
		zap.String("method", name),
		zap.String("version", r.Version()),
		zap.String("model", model),
		zap.Int("queries", len(queries)),
		zap.Bool("requires_context", r.RequiresContext()),
	)
	results, err := r.ReformulateBatch(ctx, queries, reformulator.BatchOptions{
		Contexts:   opts.Contexts,
		NumThreads: opts.NumThreads,
	})
	if err != nil {
		return nil, fmt.Errorf("reformulate with %s: %w", name, err)
	}
	p.logger.Info("reformulated",
		zap.String("method", name),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

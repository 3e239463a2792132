package queryforge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/llm"
	"github.com/kailas-cloud/queryforge/internal/pipeline"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/retriever"
	"github.com/kailas-cloud/queryforge/internal/transport/openai"
	"github.com/kailas-cloud/queryforge/internal/usecase/budget"
	healthuc "github.com/kailas-cloud/queryforge/internal/usecase/health"
	usageuc "github.com/kailas-cloud/queryforge/internal/usecase/usage"
)

const budgetProvider = "llm"

// Client is the queryforge SDK entry point. Safe for concurrent use.
type Client struct {
	pipeline   *pipeline.Pipeline
	retriever  *retriever.Retriever
	model      string
	numThreads int
	healthSvc  *healthuc.Service
	usageSvc   *usageuc.Service
	obs        *observer
}

// New creates a Client. A language model is required; the default searcher
// is built eagerly so that a bad index fails here rather than mid-run.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.llm == nil && !cfg.openai {
		return nil, errors.New("queryforge: language model required (use WithOpenAI or WithLLM)")
	}

	if err := pipeline.Bootstrap(); err != nil {
		return nil, fmt.Errorf("queryforge: %w", err)
	}

	var prompts *prompt.Bank
	if cfg.promptPath != "" {
		var err error
		if prompts, err = prompt.LoadFile(cfg.promptPath); err != nil {
			return nil, fmt.Errorf("queryforge: load prompts: %w", err)
		}
	}

	var tracker *budget.Tracker
	if cfg.dailyTokens > 0 || cfg.monthlyTokens > 0 {
		action := budget.ActionWarn
		if cfg.rejectOverrun {
			action = budget.ActionReject
		}
		tracker = budget.NewTracker(budgetProvider, budget.Limits{
			Daily:   cfg.dailyTokens,
			Monthly: cfg.monthlyTokens,
			Action:  action,
		}, zap.NewNop())
	}

	p, err := pipeline.New(pipeline.Config{
		Prompts:     prompts,
		LLM:         llmFactory(cfg, tracker),
		LLMSettings: llm.Settings{Temperature: cfg.temperature, MaxTokens: cfg.maxTokens},
		Searcher:    pipeline.SearcherConfig{Type: cfg.searcherType, Kwargs: cfg.searcherKwargs},
	})
	if err != nil {
		return nil, fmt.Errorf("queryforge: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		pipeline:   p,
		model:      cfg.model,
		numThreads: cfg.numThreads,
		obs:        obs,
	}

	checks := map[string]healthuc.Checker{}
	if cfg.searcherType != "" {
		if c.retriever, err = p.NewRetriever(pipeline.SearcherConfig{}); err != nil {
			return nil, fmt.Errorf("queryforge: %w", err)
		}
		checks["searcher"] = healthuc.CheckerFunc(c.pingSearcher)
	}
	c.healthSvc = healthuc.New(checks, 0)
	if tracker != nil {
		c.usageSvc = usageuc.New(tracker)
	} else {
		c.usageSvc = usageuc.New()
	}
	return c, nil
}

func llmFactory(cfg *clientConfig, tracker *budget.Tracker) llm.Factory {
	if cfg.llm != nil {
		return func(model string) (llm.Client, error) {
			return &llmAdapter{inner: cfg.llm, model: model}, nil
		}
	}
	var b openai.Budget
	if tracker != nil {
		b = tracker
	}
	return func(model string) (llm.Client, error) {
		chat, err := openai.NewChat(openai.Config{
			APIKey:  cfg.apiKey,
			BaseURL: cfg.baseURL,
			Model:   model,
			Budget:  b,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("chat client: %w", err)
		}
		return chat, nil
	}
}

// Close releases the default searcher.
func (c *Client) Close() error {
	if c.retriever == nil {
		return nil
	}
	if err := c.retriever.Close(); err != nil {
		return fmt.Errorf("queryforge: close searcher: %w", err)
	}
	return nil
}

// Reformulate runs method over queries. Results are index-aligned with queries.
func (c *Client) Reformulate(
	ctx context.Context, method string, queries []Query, opts ReformulateOptions,
) (results []Result, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("reformulate", start, err, "method", method, "queries", len(queries))
	}()

	items, err := toQueryItems(queries)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = c.model
	}
	threads := opts.NumThreads
	if threads <= 0 {
		threads = c.numThreads
	}

	out, err := c.pipeline.Run(ctx, method, model, opts.Params, items, pipeline.RunOptions{
		Contexts:   fromHitMap(opts.Contexts),
		NumThreads: threads,
	})
	if err != nil {
		return nil, fmt.Errorf("reformulate %s: %w", method, err)
	}
	results = make([]Result, len(out))
	for i, r := range out {
		results[i] = Result{
			QueryID:      r.QID,
			Original:     r.Original,
			Reformulated: r.Reformulated,
			Metadata:     r.Metadata,
		}
	}
	return results, nil
}

// Retrieve searches the default searcher. k <= 0 means 10.
// The result maps query id to hits.
func (c *Client) Retrieve(ctx context.Context, queries []Query, k int) (hits map[string][]Hit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("retrieve", start, err, "queries", len(queries), "k", k) }()

	if c.retriever == nil {
		return nil, domain.Configurationf("no default searcher (use WithSearcher)")
	}
	items, err := toQueryItems(queries)
	if err != nil {
		return nil, err
	}
	lists, err := c.retriever.RetrieveBatch(ctx, domain.Texts(items), k, c.numThreads)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	hits = make(map[string][]Hit, len(items))
	for i, q := range items {
		hits[q.QID()] = toHits(lists[i])
	}
	return hits, nil
}

// Methods returns the registered reformulation method names.
func (c *Client) Methods() []string { return c.pipeline.Methods() }

// Searchers returns the registered searcher type names.
func (c *Client) Searchers() []string { return c.pipeline.Searchers() }

// Prompts lists catalog prompts, optionally filtered by method family.
func (c *Client) Prompts(family string) []PromptInfo {
	bank := c.pipeline.Prompts()
	var entries []prompt.Entry
	if family != "" {
		entries = bank.Family(family)
	} else {
		for _, id := range bank.IDs() {
			e, _ := bank.Get(id)
			entries = append(entries, e)
		}
	}
	out := make([]PromptInfo, len(entries))
	for i := range entries {
		e := &entries[i]
		out[i] = PromptInfo{
			ID:           e.ID,
			MethodFamily: e.MethodFamily,
			Version:      e.Version,
			IntroducedBy: e.IntroducedBy,
			License:      e.License,
			Authors:      e.Authors,
			Tags:         e.Tags,
			Variables:    e.Variables(),
		}
	}
	return out
}

func (c *Client) pingSearcher(ctx context.Context) error {
	if _, err := c.retriever.Retrieve(ctx, "health", 1); err != nil {
		return fmt.Errorf("searcher: %w", err)
	}
	return nil
}

func toQueryItems(queries []Query) ([]domain.QueryItem, error) {
	items := make([]domain.QueryItem, len(queries))
	for i, q := range queries {
		item, err := domain.NewQueryItem(q.ID, q.Text)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		items[i] = item
	}
	if err := domain.ValidateUniqueQIDs(items); err != nil {
		return nil, fmt.Errorf("queries: %w", err)
	}
	return items, nil
}

func fromHitMap(in map[string][]Hit) map[string][]domain.SearchHit {
	if in == nil {
		return nil
	}
	out := make(map[string][]domain.SearchHit, len(in))
	for qid, hits := range in {
		conv := make([]domain.SearchHit, len(hits))
		for i, h := range hits {
			conv[i] = domain.SearchHit{DocID: h.DocID, Score: h.Score, Content: h.Content, Metadata: h.Metadata}
		}
		out[qid] = conv
	}
	return out
}

func toHits(in []domain.SearchHit) []Hit {
	out := make([]Hit, len(in))
	for i, h := range in {
		out[i] = Hit{DocID: h.DocID, Score: h.Score, Content: h.Content, Metadata: h.Metadata}
	}
	return out
}

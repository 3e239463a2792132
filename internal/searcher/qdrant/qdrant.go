// Package qdrant is a dense searcher: queries are embedded with an
// OpenAI-compatible model and matched against a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/transport/openai"
)

// Name is the registry key.
const Name = "qdrant"

// Config are the searcher options.
type Config struct {
	Host       string            `mapstructure:"host"`
	Port       int               `mapstructure:"port"`
	APIKey     string            `mapstructure:"api_key"`
	UseTLS     bool              `mapstructure:"use_tls"`
	Collection string            `mapstructure:"collection"`
	Using      string            `mapstructure:"using"` // named vector, empty for the default one
	IDField    string            `mapstructure:"id_field"`
	ContentKey string            `mapstructure:"content_field"`
	Filter     map[string]string `mapstructure:"filter"` // payload keyword matches, AND-ed
	Timeout    time.Duration     `mapstructure:"timeout"`

	EmbeddingModel   string `mapstructure:"embedding_model"`
	EmbeddingBaseURL string `mapstructure:"embedding_base_url"`
	EmbeddingAPIKey  string `mapstructure:"embedding_api_key"`
	Dimensions       int    `mapstructure:"dimensions"`
	// QueryPrefix is prepended to queries before embedding ("query: " for E5).
	QueryPrefix string `mapstructure:"query_prefix"`
}

// Defaults.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 6334
	DefaultTimeout = 30 * time.Second
)

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.IDField == "" {
		c.IDField = "doc_id"
	}
	if c.ContentKey == "" {
		c.ContentKey = "content"
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks the options.
func (c *Config) Validate() error {
	if c.Collection == "" {
		return domain.Configurationf("qdrant: collection is required")
	}
	if c.EmbeddingModel == "" {
		return domain.Configurationf("qdrant: embedding_model is required")
	}
	if c.Dimensions < 0 {
		return domain.Configurationf("qdrant: dimensions must be >= 0")
	}
	return nil
}

// PointQuerier is the part of the Qdrant client the searcher uses.
type PointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Searcher embeds queries and runs nearest-neighbour queries.
type Searcher struct {
	cfg      Config
	client   PointQuerier
	embedder domain.Embedder
	logger   *zap.Logger
}

var _ searcher.Searcher = (*Searcher)(nil)

// New connects to Qdrant and builds the query embedder.
func New(cfg Config, budget searcher.TokenBudget, logger *zap.Logger) (*Searcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	emb, err := openai.NewEmbedder(openai.Config{
		APIKey:  cfg.EmbeddingAPIKey,
		BaseURL: cfg.EmbeddingBaseURL,
		Model:   cfg.EmbeddingModel,
		Budget:  budget,
	}, cfg.Dimensions, logger)
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	return NewWithClient(cfg, client, emb, logger)
}

// NewWithClient builds a searcher over an existing client and embedder.
func NewWithClient(cfg Config, client PointQuerier, emb domain.Embedder, logger *zap.Logger) (*Searcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if cfg.Collection == "" {
		return nil, domain.Configurationf("qdrant: collection is required")
	}
	return &Searcher{
		cfg:      cfg,
		client:   client,
		embedder: domain.NewPrefixEmbedder(emb, cfg.QueryPrefix),
		logger:   logger,
	}, nil
}

// Register adds the searcher to reg.
func Register(reg *searcher.Registry) error {
	return reg.Register(Name, func(args searcher.Args) (searcher.Searcher, error) {
		var cfg Config
		if err := searcher.DecodeKwargs(Name, args.Kwargs, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, args.Budget, args.Logger)
	})
}

// Search implements searcher.Searcher.
func (s *Searcher) Search(ctx context.Context, query string, k int, opts ...searcher.Option) ([]domain.SearchHit, error) {
	if err := searcher.ValidateK(k); err != nil {
		return nil, err
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: embed query: %w", err)
	}
	return s.searchVector(ctx, emb.Embedding, k, searcher.Apply(opts...))
}

// BatchSearch implements searcher.Searcher. All queries are embedded in one
// request when the embedder supports it, then searched on a bounded pool.
func (s *Searcher) BatchSearch(
	ctx context.Context, queries []string, k, numThreads int, opts ...searcher.Option,
) ([][]domain.SearchHit, error) {
	if err := searcher.ValidateK(k); err != nil {
		return nil, err
	}
	out := make([][]domain.SearchHit, len(queries))
	if len(queries) == 0 {
		return out, nil
	}
	embs, err := domain.EmbedAll(ctx, s.embedder, queries)
	if err != nil {
		return nil, fmt.Errorf("qdrant: embed queries: %w", err)
	}
	o := searcher.Apply(opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searcher.Threads(numThreads, len(queries)))
	for i, vec := range embs.Embeddings {
		g.Go(func() error {
			hits, err := s.searchVector(gctx, vec, k, o)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("qdrant batch search: %w", err)
	}
	return out, nil
}

func (s *Searcher) searchVector(ctx context.Context, vec []float32, k int, o searcher.Options) ([]domain.SearchHit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(s.cfg.Filter),
	}
	if s.cfg.Using != "" {
		req.Using = qdrant.PtrOf(s.cfg.Using)
	}
	if o.HasMinScore {
		req.ScoreThreshold = qdrant.PtrOf(float32(o.MinScore))
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	hits := make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, s.toHit(p))
	}
	return o.Filter(searcher.SortHits(hits, k)), nil
}

func (s *Searcher) toHit(p *qdrant.ScoredPoint) domain.SearchHit {
	id := payloadString(p.GetPayload(), s.cfg.IDField)
	if id == "" {
		switch v := p.GetId().GetPointIdOptions().(type) {
		case *qdrant.PointId_Uuid:
			id = v.Uuid
		case *qdrant.PointId_Num:
			id = strconv.FormatUint(v.Num, 10)
		}
	}
	return domain.SearchHit{
		DocID:   id,
		Score:   float64(p.GetScore()),
		Content: payloadString(p.GetPayload(), s.cfg.ContentKey),
	}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func buildFilter(match map[string]string) *qdrant.Filter {
	if len(match) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(match))
	for key, value := range match {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Info implements searcher.Searcher.
func (s *Searcher) Info() map[string]any {
	return map[string]any{
		searcher.InfoName:    "QdrantDenseSearcher",
		searcher.InfoBackend: Name,
		"collection":         s.cfg.Collection,
		"embedding_model":    s.cfg.EmbeddingModel,
		"using":              s.cfg.Using,
	}
}

// Close closes the gRPC connection.
func (s *Searcher) Close() error {
	return s.client.Close()
}

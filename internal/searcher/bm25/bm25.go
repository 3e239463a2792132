// Package bm25 is an in-process BM25 searcher over a JSONL corpus, with
// optional RM3 or Rocchio pseudo-relevance feedback.
package bm25

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
)

// Name is the registry key.
const Name = "bm25"

// Config are the searcher options.
type Config struct {
	Index     string  `mapstructure:"index"`
	IDField   string  `mapstructure:"id_field"`
	AnswerKey string  `mapstructure:"answer_key"` // pipe-separated content fields
	K1        float64 `mapstructure:"k1"`
	B         float64 `mapstructure:"b"`
	Stopwords *bool   `mapstructure:"stopwords"`

	RM3                bool    `mapstructure:"rm3"`
	Rocchio            bool    `mapstructure:"rocchio"`
	RocchioUseNegative bool    `mapstructure:"rocchio_use_negative"`
	RocchioBeta        float64 `mapstructure:"rocchio_beta"`

	FeedbackConfig `mapstructure:",squash"`
}

// Defaults follow the Anserini settings.
const (
	DefaultK1                  = 0.9
	DefaultB                   = 0.4
	DefaultFbDocs              = 10
	DefaultFbTerms             = 10
	DefaultOriginalQueryWeight = 0.5
	DefaultRocchioBeta         = 0.75
	rocchioNegativeGamma       = 0.15
	rocchioNegativeDepth       = 100
)

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.AnswerKey == "" {
		c.AnswerKey = "contents"
	}
	if c.K1 == 0 && c.B == 0 {
		c.K1, c.B = autoParams(c.Index)
	}
	if c.Stopwords == nil {
		on := true
		c.Stopwords = &on
	}
	if c.FbDocs <= 0 {
		c.FbDocs = DefaultFbDocs
	}
	if c.FbTerms <= 0 {
		c.FbTerms = DefaultFbTerms
	}
	if c.OriginalQueryWeight == 0 {
		c.OriginalQueryWeight = DefaultOriginalQueryWeight
	}
	if c.RocchioBeta == 0 {
		c.RocchioBeta = DefaultRocchioBeta
	}
}

// autoParams picks tuned parameters for the well-known MS MARCO corpora.
func autoParams(index string) (float64, float64) {
	switch {
	case strings.Contains(index, "msmarco-passage"):
		return 0.82, 0.68
	case strings.Contains(index, "msmarco-doc"):
		return 4.46, 0.82
	default:
		return DefaultK1, DefaultB
	}
}

// Validate checks the options.
func (c *Config) Validate() error {
	if c.Index == "" {
		return domain.Configurationf("bm25: index (corpus path) is required")
	}
	if c.K1 < 0 || c.B < 0 || c.B > 1 {
		return domain.Configurationf("bm25: k1 must be >= 0 and b in [0, 1], got k1=%v b=%v", c.K1, c.B)
	}
	if c.RM3 && c.Rocchio {
		return domain.Configurationf("bm25: rm3 and rocchio are mutually exclusive")
	}
	if w := c.OriginalQueryWeight; w < 0 || w > 1 {
		return domain.Configurationf("bm25: original_query_weight must be in [0, 1], got %v", w)
	}
	return nil
}

// Searcher is the BM25 searcher. Read-only after construction.
type Searcher struct {
	cfg Config
	idx *index
}

var _ searcher.Searcher = (*Searcher)(nil)

// New loads (or reuses) the corpus index described by cfg.
func New(cfg Config, logger *zap.Logger) (*Searcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx, err := cachedIndex(cfg.Index, cfg.IDField, dataset.SplitAnswerKey(cfg.AnswerKey), *cfg.Stopwords, logger)
	if err != nil {
		return nil, err
	}
	return &Searcher{cfg: cfg, idx: idx}, nil
}

// newFromDocs builds a searcher over in-memory documents.
func newFromDocs(cfg Config, docs []dataset.Document) *Searcher {
	cfg.ApplyDefaults()
	return &Searcher{cfg: cfg, idx: buildIndex(docs, *cfg.Stopwords)}
}

// Register adds the searcher to reg.
func Register(reg *searcher.Registry) error {
	return reg.Register(Name, func(args searcher.Args) (searcher.Searcher, error) {
		var cfg Config
		if err := searcher.DecodeKwargs(Name, args.Kwargs, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, args.Logger)
	})
}

// Search implements searcher.Searcher. The per-call extras "rm3" and
// "rocchio" toggle feedback for this call only.
func (s *Searcher) Search(_ context.Context, query string, k int, opts ...searcher.Option) ([]domain.SearchHit, error) {
	if err := searcher.ValidateK(k); err != nil {
		return nil, err
	}
	o := searcher.Apply(opts...)

	q := s.idx.queryVector(query)
	rm3 := o.Bool("rm3", s.cfg.RM3)
	rocchio := o.Bool("rocchio", s.cfg.Rocchio)

	switch {
	case rm3:
		first := s.idx.score(q, s.cfg.K1, s.cfg.B, max(k, s.cfg.FbDocs))
		q = s.idx.rm3(q, first, s.cfg.FeedbackConfig)
	case rocchio:
		depth := max(k, s.cfg.FbDocs)
		gamma := 0.0
		if s.cfg.RocchioUseNegative {
			depth = max(depth, rocchioNegativeDepth)
			gamma = rocchioNegativeGamma
		}
		first := s.idx.score(q, s.cfg.K1, s.cfg.B, depth)
		q = s.idx.rocchio(q, first, s.cfg.FeedbackConfig, s.cfg.RocchioBeta, gamma)
	}

	ranked := s.idx.score(q, s.cfg.K1, s.cfg.B, k)
	hits := make([]domain.SearchHit, len(ranked))
	for i, r := range ranked {
		d := s.idx.docs[r.doc]
		hits[i] = domain.SearchHit{
			DocID:    d.ID,
			Score:    r.score,
			Content:  d.Content,
			Metadata: map[string]any{"answer_key": s.cfg.AnswerKey},
		}
	}
	return o.Filter(hits), nil
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
		searcher.InfoName:      "BM25Searcher",
		searcher.InfoBackend:   Name,
		"index":                s.cfg.Index,
		"k1":                   s.cfg.K1,
		"b":                    s.cfg.B,
		"rm3":                  s.cfg.RM3,
		"rocchio":              s.cfg.Rocchio,
		"rocchio_use_negative": s.cfg.RocchioUseNegative,
		"fb_docs":              s.cfg.FbDocs,
		"fb_terms":             s.cfg.FbTerms,
		"answer_key":           s.cfg.AnswerKey,
		"num_docs":             len(s.idx.docs),
	}
}

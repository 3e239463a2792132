package reformulator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/metrics"
	"github.com/kailas-cloud/queryforge/internal/retriever"
)

// GenerateFunc produces the reformulated text and method-specific metadata
// for one query. contexts are already resolved and truncated.
type GenerateFunc func(ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit) (string, map[string]any, error)

// Spec describes a method to Base.
type Spec struct {
	Name            string
	Version         string
	RequiresContext bool
	PromptIDs       []string
	// MaxContexts truncates contexts before generation; 0 keeps all.
	MaxContexts int
	// RetrievalK is the depth asked from the retriever; 0 means MaxContexts,
	// then retriever.DefaultK.
	RetrievalK int
	// RetrievalThreads bounds concurrent retrieval in batches.
	RetrievalThreads int
}

// Base implements Reformulator around a GenerateFunc.
type Base struct {
	spec      Spec
	generate  GenerateFunc
	retriever *retriever.Retriever
	logger    *zap.Logger
}

var _ Reformulator = (*Base)(nil)

// NewBase wires a method. Context-grounded methods obtain their retriever
// from deps.Retriever here, once.
func NewBase(spec Spec, deps Deps, generate GenerateFunc) (*Base, error) {
	if spec.Name == "" || spec.Version == "" {
		return nil, domain.Configurationf("method name and version are required")
	}
	if generate == nil {
		return nil, domain.Configurationf("method %s has no generator", spec.Name)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Base{
		spec:     spec,
		generate: generate,
		logger:   logger.With(zap.String("method", spec.Name)),
	}
	if spec.RequiresContext && deps.Retriever != nil {
		r, err := deps.Retriever()
		if err != nil {
			return nil, fmt.Errorf("%s: build retriever: %w", spec.Name, err)
		}
		b.retriever = r
	}
	return b, nil
}

// Name implements Reformulator.
func (b *Base) Name() string { return b.spec.Name }

// Version implements Reformulator.
func (b *Base) Version() string { return b.spec.Version }

// RequiresContext implements Reformulator.
func (b *Base) RequiresContext() bool { return b.spec.RequiresContext }

// HasRetriever reports whether a retriever is attached.
func (b *Base) HasRetriever() bool { return b.retriever != nil }

// Close implements Reformulator.
func (b *Base) Close() error {
	if b.retriever == nil {
		return nil
	}
	if err := b.retriever.Close(); err != nil {
		return fmt.Errorf("%s: close retriever: %w", b.spec.Name, err)
	}
	return nil
}

func (b *Base) retrievalK() int {
	switch {
	case b.spec.RetrievalK > 0:
		return b.spec.RetrievalK
	case b.spec.MaxContexts > 0:
		return b.spec.MaxContexts
	default:
		return retriever.DefaultK
	}
}

// Reformulate implements Reformulator. Context-grounded methods use the
// supplied contexts, else the attached retriever, else fail.
func (b *Base) Reformulate(
	ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit,
) (domain.ReformulationResult, error) {
	if b.spec.RequiresContext && len(contexts) == 0 {
		if b.retriever == nil {
			return domain.ReformulationResult{}, domain.Configurationf(
				"%s requires contexts: supply them or configure a searcher", b.spec.Name)
		}
		hits, err := b.retriever.Retrieve(ctx, q.Text(), b.retrievalK())
		if err != nil {
			return domain.ReformulationResult{}, fmt.Errorf("%s: retrieve contexts for %s: %w", b.spec.Name, q.QID(), err)
		}
		contexts = hits
	}
	return b.run(ctx, q, contexts)
}

func (b *Base) run(ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit) (domain.ReformulationResult, error) {
	if b.spec.MaxContexts > 0 && len(contexts) > b.spec.MaxContexts {
		contexts = contexts[:b.spec.MaxContexts]
	}
	text, meta, err := b.generate(ctx, q, contexts)
	metrics.ReformulationsTotal.WithLabelValues(b.spec.Name, metrics.Status(err)).Inc()
	if err != nil {
		return domain.ReformulationResult{}, fmt.Errorf("%s: query %s: %w", b.spec.Name, q.QID(), err)
	}

	out := make(map[string]any, len(meta)+3)
	maps.Copy(out, meta)
	out[domain.MetaMethod] = b.spec.Name
	out[domain.MetaVersion] = b.spec.Version
	if len(b.spec.PromptIDs) > 0 {
		out[domain.MetaPromptIDs] = slices.Clone(b.spec.PromptIDs)
	}
	return domain.ReformulationResult{
		QID:          q.QID(),
		Original:     q.Text(),
		Reformulated: text,
		Metadata:     out,
	}, nil
}

// ReformulateBatch implements Reformulator. For context-grounded methods all
// missing contexts are retrieved in one batch before any generation starts.
func (b *Base) ReformulateBatch(
	ctx context.Context, queries []domain.QueryItem, opts BatchOptions,
) ([]domain.ReformulationResult, error) {
	if err := domain.ValidateUniqueQIDs(queries); err != nil {
		return nil, fmt.Errorf("%s: %w", b.spec.Name, err)
	}
	start := time.Now()
	defer func() {
		metrics.ReformulationBatchDuration.WithLabelValues(b.spec.Name).Observe(time.Since(start).Seconds())
	}()

	contexts, err := b.resolveBatchContexts(ctx, queries, opts.Contexts)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ReformulationResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.NumThreads))
	for i, q := range queries {
		g.Go(func() error {
			res, err := b.run(gctx, q, contexts[q.QID()])
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reformulate batch: %w", err)
	}
	b.logger.Info("batch reformulated",
		zap.Int("queries", len(queries)),
		zap.Int("threads", max(1, opts.NumThreads)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (b *Base) resolveBatchContexts(
	ctx context.Context, queries []domain.QueryItem, supplied map[string][]domain.SearchHit,
) (map[string][]domain.SearchHit, error) {
	if !b.spec.RequiresContext {
		return supplied, nil
	}

	out := make(map[string][]domain.SearchHit, len(queries))
	var missing []domain.QueryItem
	for _, q := range queries {
		if hits := supplied[q.QID()]; len(hits) > 0 {
			out[q.QID()] = hits
			continue
		}
		missing = append(missing, q)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if b.retriever == nil {
		return nil, domain.Configurationf("%s requires contexts: %d queries have none (first %s) and no searcher is configured",
			b.spec.Name, len(missing), missing[0].QID())
	}

	b.logger.Info("retrieving contexts", zap.Int("queries", len(missing)), zap.Int("k", b.retrievalK()))
	hits, err := b.retriever.RetrieveBatch(ctx, domain.Texts(missing), b.retrievalK(), b.spec.RetrievalThreads)
	if err != nil {
		return nil, fmt.Errorf("%s: retrieve contexts: %w", b.spec.Name, err)
	}
	for i, q := range missing {
		out[q.QID()] = hits[i]
	}
	return out, nil
}

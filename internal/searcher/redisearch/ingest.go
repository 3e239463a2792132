package redisearch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/db"
)

// Writer is what ingestion needs from the database.
type Writer interface {
	db.DocumentWriter
	db.IndexManager
}

// IngestOptions control IndexCorpus.
type IngestOptions struct {
	// Recreate drops an existing index before creating it. Stored hashes are kept.
	Recreate  bool
	BatchSize int
	Language  string
}

const defaultIngestBatch = 500

// IndexCorpus creates the FT index described by cfg, when missing, and writes
// docs as hashes under cfg.Prefix. Returns the number of documents written.
func IndexCorpus(
	ctx context.Context, w Writer, cfg Config, docs []dataset.Document, opts IngestOptions, logger *zap.Logger,
) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultIngestBatch
	}
	if opts.Language == "" {
		opts.Language = "english"
	}

	if opts.Recreate {
		if err := w.DropIndex(ctx, cfg.Index); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return 0, fmt.Errorf("drop index: %w", err)
		}
	}
	def, err := db.NewIndex(cfg.Index).
		Prefix(cfg.Prefix).
		Language(opts.Language).
		Text(cfg.ContentField, 1).
		Tag(cfg.IDField).
		Build()
	if err != nil {
		return 0, fmt.Errorf("index definition: %w", err)
	}
	switch err := w.CreateIndex(ctx, def); {
	case err == nil:
		logger.Info("created index", zap.String("index", cfg.Index))
	case errors.Is(err, db.ErrIndexExists):
		logger.Info("index exists, appending documents", zap.String("index", cfg.Index))
	default:
		return 0, fmt.Errorf("create index: %w", err)
	}

	written := 0
	for start := 0; start < len(docs); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(docs))
		items := make([]db.HashSetItem, 0, end-start)
		for _, d := range docs[start:end] {
			items = append(items, db.HashSetItem{
				Key: cfg.Prefix + d.ID,
				Fields: map[string]string{
					cfg.IDField:      d.ID,
					cfg.ContentField: d.Content,
				},
			})
		}
		if err := w.HSetMulti(ctx, items); err != nil {
			return written, fmt.Errorf("write documents %d-%d: %w", start, end, err)
		}
		written += len(items)
		logger.Debug("wrote batch", zap.Int("written", written), zap.Int("total", len(docs)))
	}
	return written, nil
}

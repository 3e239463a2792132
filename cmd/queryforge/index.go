package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	dbRedis "github.com/kailas-cloud/queryforge/internal/db/redis"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/kwargs"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/searcher/redisearch"
	"github.com/kailas-cloud/queryforge/internal/searcher/sqlite"
)

// indexFlags are the options of the index command.
type indexFlags struct {
	searcherType   string
	searcherKwargs string
	corpus         string
	idField        string
	answerKey      string
	recreate       bool
	batchSize      int
}

func (a *app) indexCmd() *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load a JSONL corpus into a persistent searcher backend",
		Long: `Load a JSONL corpus into redisearch (FT index plus one hash per document)
or sqlite (FTS5 table). bm25 indexes its corpus in memory at startup and
qdrant collections are populated by the embedding pipeline that owns them.

Content fields are joined from --answer-key, e.g. "title|text".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kw, err := parseMap("--searcher-kwargs", f.searcherKwargs)
			if err != nil {
				return err
			}
			typ := f.searcherType
			if typ == "" {
				typ = a.cfg.Searcher.Type
			}
			if typ == "" {
				return domain.Configurationf("no searcher: pass --searcher or set searcher.type in the config")
			}
			if typ == a.cfg.Searcher.Type {
				kw = kwargs.Merge(a.cfg.Searcher.Kwargs, kw)
			}

			docs, err := dataset.ReadCorpus(f.corpus, dataset.CorpusOptions{
				IDField:    f.idField,
				AnswerKeys: dataset.SplitAnswerKey(f.answerKey),
			}, a.logger)
			if err != nil {
				return fmt.Errorf("corpus: %w", err)
			}

			var n int
			switch typ {
			case redisearch.Name:
				n, err = a.indexRedis(cmd.Context(), kw, docs, f)
			case sqlite.Name:
				n, err = a.indexSQLite(cmd.Context(), kw, docs)
			default:
				return domain.Configurationf("searcher %q has no persistent index, use redisearch or sqlite", typ)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents into %s\n", n, typ)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.searcherType, "searcher", "s", "", "redisearch or sqlite (default: searcher.type from config)")
	cmd.Flags().StringVar(&f.searcherKwargs, "searcher-kwargs", "", "searcher options as a YAML or JSON mapping")
	cmd.Flags().StringVar(&f.corpus, "corpus", "", "JSONL corpus, optionally gzipped")
	cmd.Flags().StringVar(&f.idField, "id-field", "id", "corpus id field")
	cmd.Flags().StringVar(&f.answerKey, "answer-key", "contents", "pipe-separated content fields")
	cmd.Flags().BoolVar(&f.recreate, "recreate", false, "drop an existing redisearch index first")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "documents per redis round trip (default 500)")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func (a *app) indexRedis(ctx context.Context, kw map[string]any, docs []dataset.Document, f indexFlags) (int, error) {
	var cfg redisearch.Config
	if err := searcher.DecodeKwargs(redisearch.Name, kw, &cfg); err != nil {
		return 0, fmt.Errorf("searcher kwargs: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("searcher kwargs: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return 0, fmt.Errorf("redis: %w", err)
	}
	defer store.Close()
	if err := store.WaitForReady(ctx, cfg.WaitTimeout); err != nil {
		return 0, fmt.Errorf("redis: %w", err)
	}
	a.logger.Info("Connected to redis", zap.Strings("addrs", cfg.Addrs))

	n, err := redisearch.IndexCorpus(ctx, store, cfg, docs, redisearch.IngestOptions{
		Recreate:  f.recreate,
		BatchSize: f.batchSize,
	}, a.logger)
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", cfg.Index, err)
	}
	return n, nil
}

func (a *app) indexSQLite(ctx context.Context, kw map[string]any, docs []dataset.Document) (int, error) {
	var cfg sqlite.Config
	if err := searcher.DecodeKwargs(sqlite.Name, kw, &cfg); err != nil {
		return 0, fmt.Errorf("searcher kwargs: %w", err)
	}
	// The documents are already read; skip the load-when-empty path.
	cfg.Corpus = ""

	s, err := sqlite.New(ctx, cfg, a.logger)
	if err != nil {
		return 0, fmt.Errorf("open sqlite index: %w", err)
	}
	defer s.Close()
	if err := s.Load(ctx, docs); err != nil {
		return 0, fmt.Errorf("load sqlite index: %w", err)
	}
	return len(docs), nil
}

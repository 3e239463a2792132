package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/kwargs"
	"github.com/kailas-cloud/queryforge/internal/pipeline"
)

func (a *app) retrieveCmd() *cobra.Command {
	var (
		queries        queryFlags
		searcherType   string
		searcherKwargs string
		k              int
		threads        int
		output         string
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve contexts for a query file",
		Long: `Search every query and write one JSON line per query with its contexts,
doc ids and scores. The file feeds 'queryforge run --contexts'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc := pipeline.SearcherConfig{Type: searcherType}
			kw, err := parseMap("--searcher-kwargs", searcherKwargs)
			if err != nil {
				return err
			}
			switch {
			case searcherType == "" && kw != nil:
				return domain.Configurationf("--searcher-kwargs needs --searcher")
			case searcherType != "" && searcherType == a.cfg.Searcher.Type:
				sc.Kwargs = kwargs.Merge(a.cfg.Searcher.Kwargs, kw)
			default:
				sc.Kwargs = kw
			}
			if sc.Type == "" && a.cfg.Searcher.Type == "" {
				return domain.Configurationf("no searcher: pass --searcher or set searcher.type in the config")
			}
			if k <= 0 {
				k = a.cfg.Retrieval.K
			}
			if threads <= 0 {
				threads = a.cfg.Retrieval.NumThreads
			}

			items, err := queries.load(a.logger)
			if err != nil {
				return err
			}
			if err := domain.ValidateUniqueQIDs(items); err != nil {
				return fmt.Errorf("%s: %w", queries.path, err)
			}
			p, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			ret, err := p.NewRetriever(sc)
			if err != nil {
				return fmt.Errorf("searcher: %w", err)
			}
			defer func() {
				if cerr := ret.Close(); cerr != nil {
					a.logger.Warn("close retriever", zap.Error(cerr))
				}
			}()

			hits, err := ret.RetrieveBatch(cmd.Context(), domain.Texts(items), k, threads)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			if output == "-" {
				if err := dataset.WriteContexts(cmd.OutOrStdout(), items, hits); err != nil {
					return fmt.Errorf("write contexts: %w", err)
				}
				return nil
			}
			if err := writeFile(output, func(w io.Writer) error {
				return dataset.WriteContexts(w, items, hits)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retrieved top-%d contexts for %d queries: %s\n", k, len(items), output)
			return nil
		},
	}

	queries.register(cmd)
	cmd.Flags().StringVarP(&searcherType, "searcher", "s", "", "searcher type (default: searcher.type from config)")
	cmd.Flags().StringVar(&searcherKwargs, "searcher-kwargs", "", "searcher options as a YAML or JSON mapping")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "contexts per query (default: retrieval.k from config)")
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "concurrent searches (default: retrieval.num_threads from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "contexts JSONL path, - for stdout")

	return cmd
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/pipeline"
)

func (a *app) runCmd() *cobra.Command {
	var (
		queries      queryFlags
		method       string
		model        string
		params       string
		contexts     string
		output       string
		outputFormat string
		threads      int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reformulate every query of a query file",
		Long: `Reformulate a query file with one method and write the results as TSV.

The concat format holds qid and the full reformulated query, ready for a
retrieval run. The plain format holds qid and only the generated pieces.
With --output-format both, run.tsv becomes run_concat.tsv and run_plain.tsv.

Context-grounded methods (lamer, qa_expand, csqe) read --contexts when given,
otherwise they retrieve with the configured searcher.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := dataset.ParseOutputFormat(outputFormat)
			if err != nil {
				return fmt.Errorf("--output-format: %w", err)
			}
			if method == "" {
				method = a.cfg.Method.Name
			}
			if model == "" {
				model = a.cfg.LLM.Model
			}
			if threads <= 0 {
				threads = a.cfg.Method.NumThreads
			}
			methodParams, err := a.methodParams(method, params)
			if err != nil {
				return err
			}

			items, err := queries.load(a.logger)
			if err != nil {
				return err
			}
			var ctxMap map[string][]domain.SearchHit
			if contexts != "" {
				if ctxMap, err = dataset.LoadContexts(contexts, a.logger); err != nil {
					return fmt.Errorf("contexts: %w", err)
				}
			}

			p, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			ctx, usage := domain.NewContextWithUsage(cmd.Context())
			results, err := p.Run(ctx, method, model, methodParams, items, pipeline.RunOptions{
				Contexts:   ctxMap,
				NumThreads: threads,
			})
			if err != nil {
				return fmt.Errorf("run %s: %w", method, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed %d queries with %s\n", len(results), method)
			if err := writeResults(out, output, format, method, results); err != nil {
				return err
			}
			promptTokens, completionTokens, calls := usage.Snapshot()
			a.logger.Info("run finished",
				zap.String("method", method),
				zap.String("model", model),
				zap.Int("queries", len(results)),
				zap.Int("llm_calls", calls),
				zap.Int("prompt_tokens", promptTokens),
				zap.Int("completion_tokens", completionTokens),
			)
			return nil
		},
	}

	queries.register(cmd)
	cmd.Flags().StringVarP(&method, "method", "m", "", "reformulation method (default: method.name from config)")
	cmd.Flags().StringVar(&model, "model", "", "LLM model (default: llm.model from config)")
	cmd.Flags().StringVarP(&params, "params", "p", "", `method params as a YAML or JSON mapping, e.g. '{"gen_num": 3}'`)
	cmd.Flags().StringVar(&contexts, "contexts", "", "pre-retrieved contexts JSONL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output TSV path")
	cmd.Flags().StringVar(&outputFormat, "output-format", string(dataset.OutputBoth), "concat, plain or both")
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "concurrent queries (default: method.num_threads from config)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func writeResults(
	out io.Writer, path string, format dataset.OutputFormat, method string, results []domain.ReformulationResult,
) error {
	concatPath, plainPath := path, path
	if format == dataset.OutputBoth {
		concatPath, plainPath = dataset.SiblingPaths(path)
	}

	if format != dataset.OutputPlain {
		if err := writeFile(concatPath, func(w io.Writer) error {
			return dataset.WriteConcat(w, results)
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "  Concat: %s\n", concatPath)
	}
	if format != dataset.OutputConcat {
		if err := writeFile(plainPath, func(w io.Writer) error {
			return dataset.WritePlain(w, method, results)
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "  Plain: %s\n", plainPath)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

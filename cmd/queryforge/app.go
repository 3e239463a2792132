package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/queryforge/internal/config"
	"github.com/kailas-cloud/queryforge/internal/dataset"
	dbRedis "github.com/kailas-cloud/queryforge/internal/db/redis"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/kwargs"
	"github.com/kailas-cloud/queryforge/internal/llm"
	logpkg "github.com/kailas-cloud/queryforge/internal/logger"
	"github.com/kailas-cloud/queryforge/internal/metrics"
	"github.com/kailas-cloud/queryforge/internal/pipeline"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/transport/openai"
	"github.com/kailas-cloud/queryforge/internal/usecase/budget"
)

// app carries the state shared by all subcommands. It is filled by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	env        string
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
	// newLLM replaces the OpenAI-compatible client factory when set.
	newLLM llm.Factory

	// Filled by connect.
	connected       bool
	redis           *dbRedis.Store
	llmBudget       *budget.Tracker
	embeddingBudget *budget.Tracker
}

func newApp() *app {
	return &app{}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queryforge",
		Short: "LLM query reformulation for sparse retrieval",
		Long: `queryforge rewrites search queries with LLM-based expansion methods
(GenQR, Query2Doc, MuGI, LameR, CSQE and friends) and retrieves
contexts for the methods grounded on them.

Run 'queryforge run' to reformulate a query file.
Run 'queryforge serve' to start the HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.closeBackends()
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default: config/<env>.yaml when present)")
	cmd.PersistentFlags().StringVar(&a.env, "env", "", "environment: local, dev, prod (default: $ENV or local)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	cmd.AddCommand(
		a.runCmd(),
		a.retrieveCmd(),
		a.indexCmd(),
		a.promptsCmd(),
		a.methodsCmd(),
		a.searchersCmd(),
		a.serveCmd(),
		versionCmd(),
	)
	return cmd
}

func (a *app) setup() error {
	if a.env == "" {
		a.env = config.GetEnv()
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger == nil {
		level := a.logLevel
		if level == "" {
			level = cfg.Logging.Level
		}
		logger, err := logpkg.NewLogger(a.env, level)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		a.logger = logger
	}

	if err := pipeline.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	metrics.Register()
	return nil
}

// loadConfig reads --config, or config/<env>.yaml when it exists, or falls
// back to the defaults.
func (a *app) loadConfig() (config.Config, error) {
	if a.configPath != "" {
		cfg, err := config.LoadFile(a.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(a.env)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load %s config: %w", a.env, err)
	}
	return cfg, nil
}

// llmFactory binds OpenAI-compatible chat clients to the configured provider.
func (a *app) llmFactory() llm.Factory {
	if a.newLLM != nil {
		return a.newLLM
	}
	return func(model string) (llm.Client, error) {
		chat, err := a.chat(model)
		if err != nil {
			return nil, err
		}
		return a.cached(chat), nil
	}
}

func (a *app) chat(model string) (*openai.Chat, error) {
	if model == "" {
		model = a.cfg.LLM.Model
	}
	chat, err := openai.NewChat(openai.Config{
		APIKey:  a.cfg.LLM.APIKey,
		BaseURL: a.cfg.LLM.BaseURL,
		Model:   model,
		User:    a.cfg.LLM.User,
		Budget:  a.chatBudget(),
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}
	return chat, nil
}

func (a *app) prompts() (*prompt.Bank, error) {
	if a.cfg.Prompts.Path == "" {
		bank, err := prompt.Default()
		if err != nil {
			return nil, fmt.Errorf("embedded prompt catalog: %w", err)
		}
		return bank, nil
	}
	bank, err := prompt.LoadFile(a.cfg.Prompts.Path)
	if err != nil {
		return nil, fmt.Errorf("prompt catalog: %w", err)
	}
	return bank, nil
}

func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	bank, err := a.prompts()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(pipeline.Config{
		Prompts: bank,
		LLM:     a.llmFactory(),
		LLMSettings: llm.Settings{
			Temperature: a.cfg.LLM.Temperature,
			MaxTokens:   a.cfg.LLM.MaxTokens,
		},
		Searcher:        pipeline.SearcherConfig{Type: a.cfg.Searcher.Type, Kwargs: a.cfg.Searcher.Kwargs},
		EmbeddingBudget: a.searchBudget(),
		Logger:          a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return p, nil
}

// methodParams returns the configured params of method overlaid with the
// --params document. Configured params only apply to the configured method.
func (a *app) methodParams(method, raw string) (map[string]any, error) {
	override, err := parseMap("--params", raw)
	if err != nil {
		return nil, err
	}
	if method != a.cfg.Method.Name {
		return override, nil
	}
	return kwargs.Merge(a.cfg.Method.Params, override), nil
}

// parseMap decodes an inline YAML or JSON mapping flag value.
func parseMap(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(raw), &out); err != nil {
		return nil, domain.Configurationf("%s: expected a YAML or JSON mapping: %v", flag, err)
	}
	return out, nil
}

// queryFlags are the query file options shared by run and retrieve.
type queryFlags struct {
	path     string
	format   string
	qidCol   int
	queryCol int
	qidKey   string
	queryKey string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&q.path, "queries", "q", "", "query file (TSV or JSONL)")
	cmd.Flags().StringVar(&q.format, "queries-format", "", "tsv or jsonl (default: from the file extension)")
	cmd.Flags().IntVar(&q.qidCol, "qid-col", 0, "TSV column of the query id")
	cmd.Flags().IntVar(&q.queryCol, "query-col", 1, "TSV column of the query text")
	cmd.Flags().StringVar(&q.qidKey, "qid-key", "qid", "JSONL key of the query id")
	cmd.Flags().StringVar(&q.queryKey, "query-key", "query", "JSONL key of the query text")
	_ = cmd.MarkFlagRequired("queries")
}

func (q *queryFlags) load(logger *zap.Logger) ([]domain.QueryItem, error) {
	format := dataset.Format(q.format)
	if format == "" {
		format = dataset.FormatTSV
		if ext := filepath.Ext(q.path); ext == ".jsonl" || ext == ".json" {
			format = dataset.FormatJSONL
		}
	}
	items, err := dataset.LoadQueries(q.path, dataset.QueryOptions{
		Format:   format,
		QIDCol:   q.qidCol,
		QueryCol: q.queryCol,
		QIDKey:   q.qidKey,
		QueryKey: q.queryKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("queries: %w", err)
	}
	return items, nil
}

// createFile opens path for writing, creating parent directories.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

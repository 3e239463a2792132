package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/pipeline"
	"github.com/kailas-cloud/queryforge/internal/retriever"
	chiTransport "github.com/kailas-cloud/queryforge/internal/transport/chi"
	healthuc "github.com/kailas-cloud/queryforge/internal/usecase/health"
	"github.com/kailas-cloud/queryforge/internal/version"
)

const healthTimeout = 5 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve POST /v1/reformulate, POST /v1/retrieve, the method, searcher and
prompt listings, GET /v1/usage, /health and /metrics. Bearer auth is enabled when
auth.api_keys is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port > 0 {
				a.cfg.HTTP.Port = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (default: http.port from config)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Starting queryforge API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("default_method", cfg.Method.Name),
		zap.String("default_model", cfg.LLM.Model),
		zap.String("searcher", cfg.Searcher.Type),
	)

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}

	checks := map[string]healthuc.Checker{}
	if cfg.LLM.Model != "" {
		chat, err := a.chat(cfg.LLM.Model)
		if err != nil {
			return err
		}
		checks["llm"] = chat
	}
	if a.redis != nil {
		checks["redis"] = healthuc.CheckerFunc(a.redis.Ping)
	}

	// The default retriever is built once and shared by /v1/retrieve calls
	// that name no searcher.
	var ret *retriever.Retriever
	if cfg.Searcher.Type != "" {
		if ret, err = p.NewRetriever(pipeline.SearcherConfig{}); err != nil {
			return fmt.Errorf("default searcher: %w", err)
		}
		defer func() {
			if cerr := ret.Close(); cerr != nil {
				logger.Warn("close default retriever", zap.Error(cerr))
			}
		}()
		checks["searcher"] = healthuc.CheckerFunc(func(ctx context.Context) error {
			if _, err := ret.Retrieve(ctx, "health", 1); err != nil {
				return fmt.Errorf("health query: %w", err)
			}
			return nil
		})
		logger.Info("Default searcher ready", zap.Any("searcher", ret.Info()))
	}
	healthSvc := healthuc.New(checks, healthTimeout)

	server := chiTransport.NewServer(p, ret, healthSvc, a.usage(), chiTransport.Defaults{
		Method:           cfg.Method.Name,
		Model:            cfg.LLM.Model,
		Params:           cfg.Method.Params,
		NumThreads:       cfg.Method.NumThreads,
		RetrievalK:       cfg.Retrieval.K,
		RetrievalThreads: cfg.Retrieval.NumThreads,
		MaxQueries:       cfg.HTTP.MaxQueries,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

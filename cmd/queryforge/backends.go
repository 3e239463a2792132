package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/config"
	dbRedis "github.com/kailas-cloud/queryforge/internal/db/redis"
	"github.com/kailas-cloud/queryforge/internal/llm"
	"github.com/kailas-cloud/queryforge/internal/metrics"
	budgetRepo "github.com/kailas-cloud/queryforge/internal/repository/budget"
	"github.com/kailas-cloud/queryforge/internal/repository/llmcache"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/transport/openai"
	"github.com/kailas-cloud/queryforge/internal/usecase/budget"
	usageuc "github.com/kailas-cloud/queryforge/internal/usecase/usage"
)

// Budget provider names, used in metric labels and Redis keys.
const (
	providerLLM       = "llm"
	providerEmbedding = "embedding"
)

// connect opens the shared Redis connection and builds the token budgets.
// It runs once per process; later calls are no-ops.
func (a *app) connect(ctx context.Context) error {
	if a.connected {
		return nil
	}
	a.connected = true

	if len(a.cfg.Redis.Addrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    a.cfg.Redis.Addrs,
			Username: a.cfg.Redis.Username,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(a.cfg.Redis.WaitTimeoutSec)*time.Second); err != nil {
			store.Close()
			return fmt.Errorf("redis: %w", err)
		}
		a.redis = store
		a.logger.Info("Connected to redis", zap.Strings("addrs", a.cfg.Redis.Addrs))
	}

	var err error
	if a.llmBudget, err = a.tracker(ctx, providerLLM, a.cfg.LLM.Budget); err != nil {
		return err
	}
	if a.embeddingBudget, err = a.tracker(ctx, providerEmbedding, a.cfg.Embedding.Budget); err != nil {
		return err
	}
	return nil
}

// tracker builds a budget tracker, or returns nil when bc sets no limit.
func (a *app) tracker(ctx context.Context, provider string, bc config.BudgetConfig) (*budget.Tracker, error) {
	if !bc.Enabled() {
		return nil, nil
	}
	action, err := budget.ParseAction(bc.Action)
	if err != nil {
		return nil, fmt.Errorf("%s budget: %w", provider, err)
	}
	t := budget.NewTracker(provider, budget.Limits{
		Daily:   bc.DailyTokenLimit,
		Monthly: bc.MonthlyTokenLimit,
		Action:  action,
	}, a.logger)
	if a.redis != nil {
		t.WithStore(ctx, budgetRepo.New(a.redis, 0, 0))
	}
	a.logger.Info("Token budget enabled",
		zap.String("provider", provider),
		zap.Int64("daily_limit", bc.DailyTokenLimit),
		zap.Int64("monthly_limit", bc.MonthlyTokenLimit),
		zap.String("action", string(action)),
	)
	return t, nil
}

// closeBackends releases the Redis connection.
func (a *app) closeBackends() {
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
}

// cached wraps chat with the response cache when it is enabled.
func (a *app) cached(chat *openai.Chat) llm.Client {
	if !a.cfg.LLM.Cache.Enabled || a.redis == nil {
		return chat
	}
	ttl := time.Duration(a.cfg.LLM.Cache.TTLSec) * time.Second
	return llmcache.New(chat, chat.Model(), a.redis, ttl, metrics.LLMCacheTotal, a.logger)
}

func (a *app) chatBudget() openai.Budget {
	if a.llmBudget == nil {
		return nil
	}
	return a.llmBudget
}

func (a *app) searchBudget() searcher.TokenBudget {
	if a.embeddingBudget == nil {
		return nil
	}
	return a.embeddingBudget
}

// usage reports the enabled budgets.
func (a *app) usage() *usageuc.Service {
	var readers []usageuc.BudgetReader
	for _, t := range []*budget.Tracker{a.llmBudget, a.embeddingBudget} {
		if t != nil {
			readers = append(readers, t)
		}
	}
	return usageuc.New(readers...)
}

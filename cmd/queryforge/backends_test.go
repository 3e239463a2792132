package main

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/config"
	"github.com/kailas-cloud/queryforge/internal/transport/openai"
	usageuc "github.com/kailas-cloud/queryforge/internal/usecase/usage"
)

func testApp(mutate func(*config.Config)) *app {
	a := newApp()
	a.logger = zap.NewNop()
	a.cfg = config.Default()
	a.cfg.LLM.Model = "test-model"
	mutate(&a.cfg)
	return a
}

func TestConnect_NoBackends(t *testing.T) {
	a := testApp(func(*config.Config) {})
	if err := a.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if a.redis != nil || a.llmBudget != nil || a.embeddingBudget != nil {
		t.Errorf("unexpected backends: %+v", a)
	}
	if a.chatBudget() != nil || a.searchBudget() != nil {
		t.Error("nil trackers must yield nil budgets")
	}
	if r := a.usage().Report(usageuc.PeriodDay); len(r.Providers) != 0 {
		t.Errorf("providers = %+v", r.Providers)
	}

	chat, err := a.chat("")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if _, ok := a.cached(chat).(*openai.Chat); !ok {
		t.Error("cache wrapped the client without redis")
	}
}

func TestConnect_InMemoryBudgets(t *testing.T) {
	a := testApp(func(c *config.Config) {
		c.LLM.Budget = config.BudgetConfig{DailyTokenLimit: 100, Action: "reject"}
		c.Embedding.Budget = config.BudgetConfig{MonthlyTokenLimit: 5000, Action: "warn"}
	})
	if err := a.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if a.chatBudget() == nil || a.searchBudget() == nil {
		t.Fatal("budgets not built")
	}

	a.llmBudget.Record(100)
	if err := a.chatBudget().Check(context.Background()); err == nil {
		t.Error("expected exhausted llm budget to reject")
	}

	r := a.usage().Report(usageuc.PeriodMonth)
	if len(r.Providers) != 2 || r.Providers[0].Provider != providerLLM || r.Providers[1].Provider != providerEmbedding {
		t.Fatalf("providers = %+v", r.Providers)
	}
	if p := r.Providers[1]; p.Limit != 5000 || p.Remaining != 5000 {
		t.Errorf("embedding = %+v", p)
	}
}

func TestConnect_RejectsBadAction(t *testing.T) {
	a := testApp(func(c *config.Config) {
		c.LLM.Budget = config.BudgetConfig{DailyTokenLimit: 1, Action: "block"}
	})
	if err := a.connect(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}

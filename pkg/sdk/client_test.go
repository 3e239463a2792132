package queryforge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeLLM answers with reply and records the messages it saw.
type fakeLLM struct {
	mu     sync.Mutex
	reply  string
	err    error
	models []string
	seen   [][]Message
	temps  []float64
}

func (f *fakeLLM) Chat(_ context.Context, model string, msgs []Message, temperature float64, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = append(f.models, model)
	f.seen = append(f.seen, msgs)
	f.temps = append(f.temps, temperature)
	return f.reply, f.err
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	lines := []string{
		`{"_id": "d1", "text": "Type 2 diabetes is caused by insulin resistance and obesity."}`,
		`{"_id": "d2", "text": "The Eiffel Tower is located in Paris, France."}`,
		`{"_id": "d3", "text": "Obesity and physical inactivity raise diabetes risk."}`,
	}
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func bm25Option(t *testing.T) Option {
	return WithSearcher("bm25", map[string]any{"index": writeCorpus(t), "id_field": "_id", "answer_key": "text"})
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_RequiresLLM(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without a language model")
	}
}

func TestNew_BadSearcherFailsEarly(t *testing.T) {
	_, err := New(WithLLM(&fakeLLM{}), WithSearcher("bm25", map[string]any{"index": "/nonexistent/corpus.jsonl"}))
	if err == nil {
		t.Fatal("expected error for a missing corpus")
	}
}

func TestReformulate_Query2Doc(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeLLM{reply: "Diabetes is a chronic disease."}
	c := newTestClient(t, WithLLM(fake), WithModel("default-model"), WithPrometheus(reg))

	results, err := c.Reformulate(context.Background(), "query2doc",
		[]Query{{ID: "q1", Text: "what causes diabetes"}},
		ReformulateOptions{Params: map[string]any{"repeat_query_weight": 1}})
	if err != nil {
		t.Fatalf("Reformulate: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	r := results[0]
	if r.QueryID != "q1" || r.Original != "what causes diabetes" {
		t.Errorf("result = %+v", r)
	}
	if r.Reformulated != "what causes diabetes Diabetes is a chronic disease." {
		t.Errorf("reformulated = %q", r.Reformulated)
	}
	if r.Metadata["method"] != "query2doc" {
		t.Errorf("metadata = %v", r.Metadata)
	}
	if len(fake.models) != 1 || fake.models[0] != "default-model" {
		t.Errorf("models = %v", fake.models)
	}
	if v := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("reformulate", "ok")); v != 1 {
		t.Errorf("reformulate ok = %v", v)
	}
}

func TestReformulate_ModelOverride(t *testing.T) {
	fake := &fakeLLM{reply: "doc"}
	c := newTestClient(t, WithLLM(fake))

	_, err := c.Reformulate(context.Background(), "query2doc",
		[]Query{{ID: "q1", Text: "paris"}}, ReformulateOptions{Model: "other"})
	if err != nil {
		t.Fatalf("Reformulate: %v", err)
	}
	if fake.models[0] != "other" {
		t.Errorf("model = %q", fake.models[0])
	}
}

func TestReformulate_Temperature(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want float64
	}{
		{"method default", nil, 0.7},
		{"override", []Option{WithTemperature(0.2)}, 0.2},
		{"explicit zero", []Option{WithTemperature(0)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{reply: "doc"}
			c := newTestClient(t, append([]Option{WithLLM(fake)}, tt.opts...)...)
			if _, err := c.Reformulate(context.Background(), "query2doc",
				[]Query{{ID: "q1", Text: "paris"}}, ReformulateOptions{}); err != nil {
				t.Fatalf("Reformulate: %v", err)
			}
			if len(fake.temps) != 1 || fake.temps[0] != tt.want {
				t.Errorf("temperatures = %v, want [%v]", fake.temps, tt.want)
			}
		})
	}
}

func TestReformulate_UnknownMethod(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestClient(t, WithLLM(&fakeLLM{}), WithPrometheus(reg))

	_, err := c.Reformulate(context.Background(), "nope", []Query{{ID: "q1", Text: "x"}}, ReformulateOptions{})
	if !errors.Is(err, ErrUnknownName) {
		t.Fatalf("expected ErrUnknownName, got %v", err)
	}
	c2 := newTestClient(t, WithLLM(&fakeLLM{}), WithPrometheus(reg))
	if _, err := c2.Reformulate(context.Background(), "nope", nil, ReformulateOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if v := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("reformulate", "error")); v != 2 {
		t.Errorf("reformulate errors = %v, want 2 across clients sharing a registry", v)
	}
}

func TestReformulate_DuplicateQueryIDs(t *testing.T) {
	fake := &fakeLLM{reply: "x"}
	c := newTestClient(t, WithLLM(fake))

	_, err := c.Reformulate(context.Background(), "query2doc",
		[]Query{{ID: "q1", Text: "a"}, {ID: "q1", Text: "b"}}, ReformulateOptions{})
	if err == nil {
		t.Fatal("expected error for duplicate ids")
	}
	if len(fake.seen) != 0 {
		t.Errorf("llm called %d times", len(fake.seen))
	}
}

func TestReformulate_LLMErrorIsWrapped(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{err: errors.New("provider down")}))

	_, err := c.Reformulate(context.Background(), "query2doc", []Query{{ID: "q1", Text: "a"}}, ReformulateOptions{})
	if !errors.Is(err, ErrLLM) {
		t.Fatalf("expected ErrLLM, got %v", err)
	}
}

func TestReformulate_ContextMethodUsesDefaultSearcher(t *testing.T) {
	fake := &fakeLLM{reply: "Insulin resistance causes type 2 diabetes."}
	c := newTestClient(t, WithLLM(fake), bm25Option(t))

	_, err := c.Reformulate(context.Background(), "lamer",
		[]Query{{ID: "q1", Text: "diabetes obesity"}}, ReformulateOptions{Params: map[string]any{"gen_num": 1}})
	if err != nil {
		t.Fatalf("Reformulate: %v", err)
	}
	if len(fake.seen) == 0 {
		t.Fatal("llm not called")
	}
	var prompt strings.Builder
	for _, m := range fake.seen[0] {
		prompt.WriteString(m.Content)
	}
	if !strings.Contains(prompt.String(), "insulin resistance and obesity") {
		t.Errorf("retrieved passage missing from prompt: %q", prompt.String())
	}
}

func TestReformulate_ContextMethodWithoutSearcher(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{reply: "x"}))

	_, err := c.Reformulate(context.Background(), "lamer", []Query{{ID: "q1", Text: "a"}}, ReformulateOptions{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	_, err = c.Reformulate(context.Background(), "lamer", []Query{{ID: "q1", Text: "a"}}, ReformulateOptions{
		Params:   map[string]any{"gen_num": 1},
		Contexts: map[string][]Hit{"q1": {{DocID: "d9", Content: "supplied passage"}}},
	})
	if err != nil {
		t.Fatalf("Reformulate with contexts: %v", err)
	}
}

func TestRetrieve(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{}), bm25Option(t))

	hits, err := c.Retrieve(context.Background(), []Query{
		{ID: "q1", Text: "diabetes insulin"},
		{ID: "q2", Text: "eiffel tower"},
	}, 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits["q1"]) != 1 || hits["q1"][0].DocID != "d1" {
		t.Errorf("q1 hits = %+v", hits["q1"])
	}
	if len(hits["q2"]) != 1 || hits["q2"][0].DocID != "d2" {
		t.Errorf("q2 hits = %+v", hits["q2"])
	}
}

func TestRetrieve_NoSearcher(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{}))
	if _, err := c.Retrieve(context.Background(), []Query{{ID: "q1", Text: "a"}}, 5); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestIntrospection(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{}))

	methods := strings.Join(c.Methods(), ",")
	for _, m := range []string{"genqr", "lamer", "query2doc"} {
		if !strings.Contains(methods, m) {
			t.Errorf("methods %q missing %s", methods, m)
		}
	}
	if !strings.Contains(strings.Join(c.Searchers(), ","), "bm25") {
		t.Errorf("searchers = %v", c.Searchers())
	}

	all := c.Prompts("")
	family := c.Prompts("query2doc")
	if len(family) == 0 || len(family) >= len(all) {
		t.Fatalf("prompts: %d in family, %d total", len(family), len(all))
	}
	for _, p := range family {
		if p.MethodFamily != "query2doc" || len(p.Variables) == 0 {
			t.Errorf("prompt = %+v", p)
		}
	}
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{}), bm25Option(t))
	h := c.Health(context.Background())
	if h.Status != "ok" || h.Checks["searcher"] != "ok" {
		t.Errorf("health = %+v", h)
	}

	bare := newTestClient(t, WithLLM(&fakeLLM{}))
	if h := bare.Health(context.Background()); h.Status != "ok" || len(h.Checks) != 0 {
		t.Errorf("bare health = %+v", h)
	}
}

func chatServer(t *testing.T, totalTokens int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "a pseudo document"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": totalTokens - 5, "completion_tokens": 5, "total_tokens": totalTokens},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenBudget_RejectsAfterExhaustion(t *testing.T) {
	srv := chatServer(t, 30)
	var logs bytes.Buffer
	c := newTestClient(t,
		WithOpenAI(srv.URL, "test-key", "qwen2.5-7b"),
		WithTokenBudget(20, 0, true),
		WithPrometheus(prometheus.NewRegistry()),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	queries := []Query{{ID: "q1", Text: "flu symptoms"}}

	if _, err := c.Reformulate(context.Background(), "query2doc", queries, ReformulateOptions{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	report, err := c.Usage(PeriodDay)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if len(report.Providers) != 1 {
		t.Fatalf("providers = %+v", report.Providers)
	}
	p := report.Providers[0]
	if p.Provider != "llm" || p.Used != 30 || p.Limit != 20 || p.Remaining != 0 || !p.Exhausted || p.Action != "reject" {
		t.Errorf("usage = %+v", p)
	}

	if _, err := c.Reformulate(context.Background(), "query2doc", queries, ReformulateOptions{}); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if v := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("reformulate", "budget_exceeded")); v != 1 {
		t.Errorf("budget_exceeded = %v", v)
	}
	if !strings.Contains(logs.String(), "token budget exhausted") || !strings.Contains(logs.String(), "method=query2doc") {
		t.Errorf("logs = %s", logs.String())
	}
}

func TestUsage(t *testing.T) {
	c := newTestClient(t, WithLLM(&fakeLLM{}))

	report, err := c.Usage("")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if report.Period != PeriodDay || len(report.Providers) != 0 {
		t.Errorf("report = %+v", report)
	}
	if _, err := c.Usage("total"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}

	limited := newTestClient(t, WithLLM(&fakeLLM{}), WithTokenBudget(0, 1000, false))
	report, err = limited.Usage(PeriodMonth)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if len(report.Providers) != 1 || report.Providers[0].Limit != 1000 || report.Providers[0].Remaining != 1000 {
		t.Errorf("report = %+v", report)
	}
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingServer answers with the given vectors in the given index order.
func embeddingServer(t *testing.T, data ...embeddingData) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "bge-m3",
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 8, "total_tokens": 8},
		})
	}))
}

func TestEmbedder_Embed(t *testing.T) {
	server := embeddingServer(t, embeddingData{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0})
	defer server.Close()

	emb, err := NewEmbedder(Config{APIKey: "test-key", BaseURL: server.URL, Model: "bge-m3"}, 2, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	res, err := emb.Embed(context.Background(), "diabetes causes")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 2 || res.TotalTokens != 8 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestEmbedder_BatchEmbedRestoresOrder(t *testing.T) {
	server := embeddingServer(t,
		embeddingData{Object: "embedding", Embedding: []float32{0.3}, Index: 1},
		embeddingData{Object: "embedding", Embedding: []float32{0.1}, Index: 0},
	)
	defer server.Close()

	emb, _ := NewEmbedder(Config{APIKey: "test-key", BaseURL: server.URL, Model: "bge-m3"}, 0, nil)
	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if res.Embeddings[0][0] != 0.1 || res.Embeddings[1][0] != 0.3 {
		t.Errorf("vectors not in input order: %v", res.Embeddings)
	}
}

func TestEmbedder_CountMismatch(t *testing.T) {
	server := embeddingServer(t, embeddingData{Object: "embedding", Embedding: []float32{0.1}, Index: 0})
	defer server.Close()

	emb, _ := NewEmbedder(Config{APIKey: "test-key", BaseURL: server.URL, Model: "bge-m3"}, 0, nil)
	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestEmbedder_EmptyInput(t *testing.T) {
	emb, _ := NewEmbedder(Config{APIKey: "k", BaseURL: "http://unused", Model: "m"}, 0, nil)
	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Errorf("expected empty result, got %+v, %v", res, err)
	}
}

func TestNewEmbedder_RequiresModel(t *testing.T) {
	if _, err := NewEmbedder(Config{}, 0, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestEmbedder_Budget(t *testing.T) {
	server := embeddingServer(t, embeddingData{Object: "embedding", Embedding: []float32{0.1}, Index: 0})
	defer server.Close()

	b := &fakeBudget{}
	emb, _ := NewEmbedder(Config{APIKey: "test-key", BaseURL: server.URL, Model: "bge-m3", Budget: b}, 0, nil)
	if _, err := emb.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(b.recorded) != 1 || b.recorded[0] != 8 {
		t.Errorf("recorded = %v", b.recorded)
	}

	b.err = domain.ErrBudgetExceeded
	if _, err := emb.Embed(context.Background(), "a"); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

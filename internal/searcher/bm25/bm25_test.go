package bm25

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/searcher"
)

var testDocs = []dataset.Document{
	{ID: "d1", Content: "Type 2 diabetes is caused by insulin resistance and obesity."},
	{ID: "d2", Content: "Insulin is a hormone produced by the pancreas."},
	{ID: "d3", Content: "The Eiffel Tower is located in Paris, France."},
	{ID: "d4", Content: "Obesity and physical inactivity raise diabetes risk."},
	{ID: "d5", Content: "Paris is the capital of France and its largest city."},
}

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSearch_RanksByBM25(t *testing.T) {
	s := newFromDocs(Config{Index: "mem"}, testDocs)

	hits, err := s.Search(context.Background(), "diabetes insulin resistance", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 matching docs, got %d: %+v", len(hits), hits)
	}
	if hits[0].DocID != "d1" {
		t.Errorf("expected d1 first, got %s", hits[0].DocID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not in descending order: %+v", hits)
		}
	}
}

func TestSearch_TruncatesToK(t *testing.T) {
	s := newFromDocs(Config{Index: "mem"}, testDocs)
	hits, err := s.Search(context.Background(), "paris france diabetes insulin obesity", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestSearch_RepeatedQueryTermsWeighMore(t *testing.T) {
	s := newFromDocs(Config{Index: "mem"}, testDocs)
	hits, err := s.Search(context.Background(), "paris paris paris insulin", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits[0].DocID != "d3" && hits[0].DocID != "d5" {
		t.Errorf("expected a Paris document first, got %s", hits[0].DocID)
	}
}

func TestSearch_RM3ExpandsQuery(t *testing.T) {
	cfg := Config{Index: "mem", RM3: true}
	cfg.FbDocs = 1
	s := newFromDocs(cfg, testDocs)

	hits, err := s.Search(context.Background(), "eiffel", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// d5 shares "paris" and "france" with the feedback document.
	found := false
	for _, h := range hits {
		if h.DocID == "d5" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected feedback to pull in d5, got %+v", hits)
	}

	plain, _ := s.Search(context.Background(), "eiffel", 5, searcher.WithExtra("rm3", false))
	if len(plain) != 1 {
		t.Errorf("expected per-call override to disable rm3, got %d hits", len(plain))
	}
}

func TestSearch_Rocchio(t *testing.T) {
	cfg := Config{Index: "mem", Rocchio: true}
	cfg.FbDocs = 1
	s := newFromDocs(cfg, testDocs)
	hits, err := s.Search(context.Background(), "eiffel", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) < 2 || hits[0].DocID != "d3" {
		t.Errorf("expected d3 first plus expansion hits, got %+v", hits)
	}
}

func TestSearch_MinScore(t *testing.T) {
	s := newFromDocs(Config{Index: "mem"}, testDocs)
	hits, err := s.Search(context.Background(), "diabetes", 5, searcher.WithMinScore(1e9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected all hits filtered, got %d", len(hits))
	}
}

func TestSearch_InvalidK(t *testing.T) {
	s := newFromDocs(Config{Index: "mem"}, testDocs)
	if _, err := s.Search(context.Background(), "x", 0); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestBatchSearch_Aligned(t *testing.T) {
	s := newFromDocs(Config{Index: "mem"}, testDocs)
	queries := []string{"eiffel", "insulin hormone", "nothing-matches-zzz", "capital"}
	for _, threads := range []int{1, 4, 16} {
		out, err := s.BatchSearch(context.Background(), queries, 1, threads)
		if err != nil {
			t.Fatalf("threads=%d: %v", threads, err)
		}
		if len(out) != 4 || out[0][0].DocID != "d3" || out[1][0].DocID != "d2" || len(out[2]) != 0 || out[3][0].DocID != "d5" {
			t.Errorf("threads=%d: misaligned output %+v", threads, out)
		}
	}
}

func TestRegister_FromCorpusFile(t *testing.T) {
	path := writeCorpus(t,
		`{"_id": "b1", "title": "Diabetes", "text": "Causes of diabetes."}`,
		`not json`,
		`{"title": "no id"}`,
		``,
		`{"_id": 7, "title": "Paris", "text": "Capital of France."}`,
	)
	reg := searcher.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	s, err := reg.Create(Name, searcher.Args{
		Kwargs: map[string]any{"index": path, "id_field": "_id", "answer_key": "title|text", "k1": "1.2", "b": 0.75},
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hits, err := s.Search(context.Background(), "capital", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "7" || hits[0].Content != "Paris\tCapital of France." {
		t.Errorf("unexpected hits: %+v", hits)
	}
	info := s.Info()
	if info["num_docs"] != 2 || info["k1"] != 1.2 {
		t.Errorf("unexpected info: %v", info)
	}
}

func TestRegister_RejectsUnknownOption(t *testing.T) {
	reg := searcher.NewRegistry()
	_ = Register(reg)
	_, err := reg.Create(Name, searcher.Args{Kwargs: map[string]any{"index": "x", "rm4": true}})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []Config{
		{},
		{Index: "x", B: 2, K1: 1},
		{Index: "x", RM3: true, Rocchio: true},
	}
	for i, cfg := range tests {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestAutoParams(t *testing.T) {
	cfg := Config{Index: "/data/msmarco-passage/corpus.jsonl"}
	cfg.ApplyDefaults()
	if cfg.K1 != 0.82 || cfg.B != 0.68 {
		t.Errorf("expected tuned MS MARCO passage params, got %v %v", cfg.K1, cfg.B)
	}
}

func TestNew_MissingCorpus(t *testing.T) {
	_, err := New(Config{Index: filepath.Join(t.TempDir(), "missing.jsonl")}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCachedIndex_Reused(t *testing.T) {
	path := writeCorpus(t, `{"id": "x", "contents": "alpha beta"}`)
	a, err := New(Config{Index: path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(Config{Index: path, RM3: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.idx != b.idx {
		t.Error("expected the index to be shared")
	}
}

func ExampleSearcher_Search() {
	s := newFromDocs(Config{Index: "mem"}, testDocs)
	hits, _ := s.Search(context.Background(), "eiffel tower", 1)
	fmt.Println(hits[0].DocID)
	// Output: d3
}

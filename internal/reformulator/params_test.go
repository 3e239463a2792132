package reformulator

import (
	"errors"
	"slices"
	"testing"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

func TestParseTerms(t *testing.T) {
	got := ParseTerms("insulin, glucose,\nblood sugar , ,type 2")
	want := []string{"insulin", "glucose", "blood sugar", "type 2"}
	if !slices.Equal(got, want) {
		t.Errorf("ParseTerms = %q, want %q", got, want)
	}
	if ParseTerms("  ") != nil {
		t.Error("expected nil for blank answer")
	}
}

func TestExpand(t *testing.T) {
	if got := Expand("q", 3, "a", " ", "b c"); got != "q q q a b c" {
		t.Errorf("Expand = %q", got)
	}
	if got := Expand("q", 0, "a"); got != "a" {
		t.Errorf("Expand without repeats = %q", got)
	}
}

func TestContextFormatting(t *testing.T) {
	hits := []domain.SearchHit{{Content: "first"}, {Content: "second"}}
	if got := NumberedContexts(hits); got != "1. first\n2. second" {
		t.Errorf("NumberedContexts = %q", got)
	}
	if got := JoinContexts(hits); got != "first\nsecond" {
		t.Errorf("JoinContexts = %q", got)
	}
	if NumberedContexts(nil) != "" {
		t.Error("expected empty blob for no contexts")
	}
}

func TestContextParams_Apply(t *testing.T) {
	p := ContextParams{GenPassages: 3}
	spec, err := p.Apply(Spec{Name: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.RetrievalK != DefaultRetrievalK || spec.MaxContexts != 3 || spec.RetrievalThreads != DefaultRetrievalThreads {
		t.Errorf("unexpected spec %+v", spec)
	}

	p = ContextParams{RetrievalK: 5, GenPassages: 9}
	spec, err = p.Apply(Spec{Name: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.MaxContexts != 5 {
		t.Errorf("gen_passages above retrieval_k must not widen contexts, got %d", spec.MaxContexts)
	}

	p = ContextParams{RetrievalK: -1}
	if _, err := p.Apply(Spec{Name: "m"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestDecodeParams(t *testing.T) {
	var p struct {
		ContextParams `mapstructure:",squash"`
		Mode          string `mapstructure:"mode"`
	}
	err := DecodeParams("m", map[string]any{"mode": "cot", "retrieval_k": "7"}, &p)
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if p.Mode != "cot" || p.RetrievalK != 7 {
		t.Errorf("unexpected params %+v", p)
	}
	if err := DecodeParams("m", map[string]any{"bogus": true}, &p); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected unknown key rejected, got %v", err)
	}
}

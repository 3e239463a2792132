package prompt

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

const genqrCatalog = `
- id: genqr.prompt.v1
  method_family: genqr
  version: 1
  template:
    system: "You are an assistant."
    user: "Rewrite: {query}"
`

func mustLoad(t *testing.T, src string) *Bank {
	t.Helper()
	b, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func TestRender_Scenario(t *testing.T) {
	b := mustLoad(t, genqrCatalog)

	msgs, err := b.Render("genqr.prompt.v1", Vars{"query": "diabetes causes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.Message{
		{Role: "system", Content: "You are an assistant."},
		{Role: "user", Content: "Rewrite: diabetes causes"},
	}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("got %+v, want %+v", msgs, want)
	}
}

func TestRender_Deterministic(t *testing.T) {
	b := mustLoad(t, genqrCatalog)
	vars := Vars{"query": "x", "unused": "ignored"}

	first, err := b.Render("genqr.prompt.v1", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 10 {
		again, err := b.Render("genqr.prompt.v1", vars)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("render not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestRender_MissingVariable(t *testing.T) {
	b := mustLoad(t, genqrCatalog)

	_, err := b.Render("genqr.prompt.v1", Vars{"other": "x"})
	if !errors.Is(err, domain.ErrTemplateRender) {
		t.Fatalf("expected ErrTemplateRender, got %v", err)
	}
	var re *TemplateRenderError
	if !errors.As(err, &re) || re.Variable != "query" || re.PromptID != "genqr.prompt.v1" {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestRender_NotFound(t *testing.T) {
	b := mustLoad(t, genqrCatalog)
	_, err := b.Render("nope.v1", nil)
	if !errors.Is(err, domain.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound, got %v", err)
	}
}

func TestRender_EmptySystemOmitted(t *testing.T) {
	b := mustLoad(t, `
- id: keqe.v1
  method_family: csqe
  version: 1
  template:
    system: ""
    user: "Answer {query}"
`)
	msgs, err := b.Render("keqe.v1", Vars{"query": "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Errorf("expected only a user message, got %+v", msgs)
	}
}

func TestRender_AssistantPriming(t *testing.T) {
	b := mustLoad(t, `
- id: q2d.cot.v2
  method_family: query2doc
  version: 2
  template:
    system: "sys"
    user: "Q: {query}"
    assistant: "Thinking about {query}"
`)
	msgs, err := b.Render("q2d.cot.v2", Vars{"query": "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 || msgs[2].Role != domain.RoleAssistant || msgs[2].Content != "Thinking about q" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestRender_EscapedBraces(t *testing.T) {
	b := mustLoad(t, `
- id: json.out.v1
  method_family: misc
  version: 1
  template:
    system: ""
    user: 'Return {{"terms": [...]}} for {query} and keep { spaced } braces'
`)
	msgs, err := b.Render("json.out.v1", Vars{"query": "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `Return {"terms": [...]} for q and keep { spaced } braces`
	if msgs[0].Content != want {
		t.Errorf("got %q, want %q", msgs[0].Content, want)
	}
}

func TestRender_Concurrent(t *testing.T) {
	b := mustLoad(t, genqrCatalog)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := b.Render("genqr.prompt.v1", Vars{"query": "q"})
			if err != nil || len(msgs) != 2 {
				t.Errorf("concurrent render: %v %+v", err, msgs)
			}
		}()
	}
	wg.Wait()
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not a sequence", "id: x"},
		{"missing id", "- method_family: a\n  version: 1\n  template: {system: s, user: u}"},
		{"bad id format", "- id: nodots\n  method_family: a\n  version: 1\n  template: {system: s, user: u}"},
		{"version mismatch", "- id: a.b.v2\n  method_family: a\n  version: 1\n  template: {system: s, user: u}"},
		{"missing family", "- id: a.b.v1\n  version: 1\n  template: {system: s, user: u}"},
		{"missing version", "- id: a.b.v1\n  method_family: a\n  template: {system: s, user: u}"},
		{"missing template", "- id: a.b.v1\n  method_family: a\n  version: 1"},
		{"missing system", "- id: a.b.v1\n  method_family: a\n  version: 1\n  template: {user: u}"},
		{"missing user", "- id: a.b.v1\n  method_family: a\n  version: 1\n  template: {system: s}"},
		{"scalar entry", "- just a string"},
		{"duplicate id", genqrCatalog + genqrCatalog},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.src))
			if !errors.Is(err, domain.ErrCatalogParse) {
				t.Fatalf("expected ErrCatalogParse, got %v", err)
			}
		})
	}
}

func TestLoad_EmptyCatalog(t *testing.T) {
	b, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty bank, got %d", b.Len())
	}
}

func TestLoad_DescriptiveMetadata(t *testing.T) {
	b := mustLoad(t, `
- id: genqr.keywords.v3
  method_family: genqr
  version: 3
  authors: Jane Doe
  tags: [a, b]
  license: MIT
  notes: note
  template: {system: s, user: "u {query} {extra}"}
`)
	e, ok := b.Get("genqr.keywords.v3")
	if !ok {
		t.Fatal("entry not found")
	}
	if len(e.Authors) != 1 || e.Authors[0] != "Jane Doe" || len(e.Tags) != 2 || e.License != "MIT" {
		t.Errorf("unexpected metadata: %+v", e)
	}
	if got := e.Variables(); !reflect.DeepEqual(got, []string{"query", "extra"}) {
		t.Errorf("unexpected variables: %v", got)
	}
	if e.Base() != "genqr.keywords" {
		t.Errorf("unexpected base %q", e.Base())
	}
}

func TestLatestAndFamily(t *testing.T) {
	b := mustLoad(t, `
- id: genqr.keywords.v1
  method_family: genqr
  version: 1
  template: {system: s, user: u1}
- id: genqr.keywords.v2
  method_family: genqr
  version: 2
  template: {system: s, user: u2}
- id: query2doc.zeroshot.v1
  method_family: query2doc
  version: 1
  template: {system: s, user: u}
`)
	latest, ok := b.Latest("genqr.keywords")
	if !ok || latest.ID != "genqr.keywords.v2" {
		t.Errorf("unexpected latest: %+v %v", latest, ok)
	}
	if _, ok := b.Latest("missing"); ok {
		t.Error("expected no latest for unknown base")
	}
	if fam := b.Family("genqr"); len(fam) != 2 {
		t.Errorf("expected 2 genqr entries, got %d", len(fam))
	}
	ids := b.IDs()
	if len(ids) != 3 || ids[0] != "genqr.keywords.v1" {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestDefaultCatalog(t *testing.T) {
	b, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, id := range []string{
		"genqr.keywords.v1", "genqr.keywords.variant.v1",
		"query2doc.zeroshot.v1", "query2doc.cot.v1", "query2e.entities.v1",
		"mugi.pseudodoc.v1", "qa_expand.subq.v1", "qa_expand.answer.v1",
		"qa_expand.refine.v1", "lamer.answer.v1", "keqe.v1", "csqe.v1",
	} {
		if _, ok := b.Get(id); !ok {
			t.Errorf("default catalog is missing %s", id)
		}
	}
}

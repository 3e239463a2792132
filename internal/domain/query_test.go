package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewQueryItem_EmptyQID(t *testing.T) {
	_, err := NewQueryItem("", "text")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewQueryItem_Accessors(t *testing.T) {
	q, err := NewQueryItem("q1", "diabetes causes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.QID() != "q1" || q.Text() != "diabetes causes" {
		t.Errorf("unexpected item: %q %q", q.QID(), q.Text())
	}
}

func TestValidateUniqueQIDs(t *testing.T) {
	ok := []QueryItem{MustQueryItem("a", "x"), MustQueryItem("b", "y")}
	if err := ValidateUniqueQIDs(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := []QueryItem{MustQueryItem("a", "x"), MustQueryItem("b", "y"), MustQueryItem("a", "z")}
	err := ValidateUniqueQIDs(dup)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), `"a"`) {
		t.Errorf("error should name the duplicate qid: %v", err)
	}

	if err := ValidateUniqueQIDs([]QueryItem{{}}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for zero-value item, got %v", err)
	}
}

func TestLLMError(t *testing.T) {
	cause := errors.New("503 upstream")
	err := NewLLMError("gpt-4", cause)

	if !errors.Is(err, ErrLLM) {
		t.Error("expected errors.Is(err, ErrLLM)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	var llmErr *LLMError
	if !errors.As(err, &llmErr) || llmErr.Model != "gpt-4" {
		t.Errorf("expected *LLMError with model, got %#v", err)
	}
}

func TestTextsAndContents(t *testing.T) {
	texts := Texts([]QueryItem{MustQueryItem("1", "a"), MustQueryItem("2", "b")})
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Errorf("unexpected texts: %v", texts)
	}
	contents := Contents([]SearchHit{{Content: "x"}, {Content: "y"}})
	if len(contents) != 2 || contents[1] != "y" {
		t.Errorf("unexpected contents: %v", contents)
	}
}

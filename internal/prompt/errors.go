package prompt

import (
	"fmt"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// CatalogParseError describes a malformed catalog entry.
type CatalogParseError struct {
	Index  int    // zero-based entry position, -1 for document-level errors
	ID     string // entry id when known
	Reason string
	Err    error
}

func (e *CatalogParseError) Error() string {
	msg := domain.ErrCatalogParse.Error()
	if e.Index >= 0 {
		msg += fmt.Sprintf(": entry %d", e.Index)
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (%s)", e.ID)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrCatalogParse.
func (e *CatalogParseError) Is(target error) bool { return target == domain.ErrCatalogParse }

func (e *CatalogParseError) Unwrap() error { return e.Err }

// TemplateRenderError names the placeholder that had no value.
type TemplateRenderError struct {
	PromptID string
	Variable string
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("%s: prompt %q: missing variable %q",
		domain.ErrTemplateRender.Error(), e.PromptID, e.Variable)
}

func (e *TemplateRenderError) Unwrap() error { return domain.ErrTemplateRender }

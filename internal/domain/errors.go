package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogParse signals a malformed prompt catalog.
	ErrCatalogParse = errors.New("catalog parse error")
	// ErrPromptNotFound signals a prompt id missing from the catalog.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrTemplateRender signals a template that could not be rendered.
	ErrTemplateRender = errors.New("template render error")
	// ErrDuplicateRegistration signals a name already bound in a registry.
	ErrDuplicateRegistration = errors.New("duplicate registration")
	// ErrUnknownRegistryKey signals a name not bound in a registry.
	ErrUnknownRegistryKey = errors.New("unknown registry key")
	// ErrConfiguration signals malformed construction arguments or options.
	ErrConfiguration = errors.New("configuration error")
	// ErrLLM signals a language model client failure.
	ErrLLM = errors.New("llm error")
	// ErrBudgetExceeded signals an exhausted token budget with the reject action.
	ErrBudgetExceeded = errors.New("token budget exceeded")
)

// LLMError wraps a language model failure with the model that produced it.
type LLMError struct {
	Model string
	Err   error
}

func (e *LLMError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%s: %v", ErrLLM.Error(), e.Err)
	}
	return fmt.Sprintf("%s (model %s): %v", ErrLLM.Error(), e.Model, e.Err)
}

// Is reports ErrLLM so callers can match the category with errors.Is.
func (e *LLMError) Is(target error) bool { return target == ErrLLM }

func (e *LLMError) Unwrap() error { return e.Err }

// NewLLMError creates an LLM error carrying the underlying cause.
func NewLLMError(model string, err error) error {
	return &LLMError{Model: model, Err: err}
}

// Configurationf formats a configuration error.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

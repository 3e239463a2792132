package queryforge

import "github.com/kailas-cloud/queryforge/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrUnknownName    = domain.ErrUnknownRegistryKey
	ErrCatalogParse   = domain.ErrCatalogParse
	ErrPromptNotFound = domain.ErrPromptNotFound
	ErrTemplateRender = domain.ErrTemplateRender
	ErrConfiguration  = domain.ErrConfiguration
	ErrLLM            = domain.ErrLLM
	ErrBudgetExceeded = domain.ErrBudgetExceeded
)

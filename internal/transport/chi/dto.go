package chi

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	usageuc "github.com/kailas-cloud/queryforge/internal/usecase/usage"
)

// ErrorResponseCode is the machine-readable error category.
type ErrorResponseCode string

// Error codes returned by the API.
const (
	ErrorResponseCodeBadRequest       ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized     ErrorResponseCode = "unauthorized"
	ErrorResponseCodeValidationFailed ErrorResponseCode = "validation_failed"
	ErrorResponseCodeUnknownName      ErrorResponseCode = "unknown_name"
	ErrorResponseCodePromptNotFound   ErrorResponseCode = "prompt_not_found"
	ErrorResponseCodeTemplateError    ErrorResponseCode = "template_error"
	ErrorResponseCodeLLMError         ErrorResponseCode = "llm_error"
	ErrorResponseCodeBudgetExceeded   ErrorResponseCode = "budget_exceeded"
	ErrorResponseCodeInternalError    ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// QueryItem is one query in a request body.
type QueryItem struct {
	QID  string `json:"qid"`
	Text string `json:"text"`
}

// SearchHit is one ranked document.
type SearchHit struct {
	DocID    string         `json:"doc_id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ReformulateRequest is the body of POST /v1/reformulate. Empty fields fall
// back to the server defaults.
type ReformulateRequest struct {
	Method     string                 `json:"method"`
	Model      string                 `json:"model"`
	Params     map[string]any         `json:"params"`
	Queries    []QueryItem            `json:"queries"`
	Contexts   map[string][]SearchHit `json:"contexts"`
	NumThreads int                    `json:"num_threads"`
}

// ReformulationResult is one reformulated query.
type ReformulationResult struct {
	QID          string         `json:"qid"`
	Original     string         `json:"original"`
	Reformulated string         `json:"reformulated"`
	Metadata     map[string]any `json:"metadata"`
}

// Usage reports the language model tokens spent on a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	Calls            int `json:"calls"`
}

// ReformulateResponse is the body of a successful POST /v1/reformulate.
type ReformulateResponse struct {
	Method  string                `json:"method"`
	Model   string                `json:"model"`
	Results []ReformulationResult `json:"results"`
	Usage   Usage                 `json:"usage"`
}

// SearcherSpec selects a searcher for one request.
type SearcherSpec struct {
	Type   string         `json:"type"`
	Kwargs map[string]any `json:"kwargs"`
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Queries    []QueryItem   `json:"queries"`
	K          int           `json:"k"`
	NumThreads int           `json:"num_threads"`
	Searcher   *SearcherSpec `json:"searcher,omitempty"`
}

// RetrieveResult holds the hits of one query.
type RetrieveResult struct {
	QID  string      `json:"qid"`
	Hits []SearchHit `json:"hits"`
}

// RetrieveResponse is the body of a successful POST /v1/retrieve.
type RetrieveResponse struct {
	Searcher map[string]any   `json:"searcher"`
	Results  []RetrieveResult `json:"results"`
}

// NamesResponse lists registry entries.
type NamesResponse struct {
	Items []string `json:"items"`
}

// PromptSummary describes a catalog entry without its templates.
type PromptSummary struct {
	ID           string   `json:"id"`
	MethodFamily string   `json:"method_family"`
	Version      int      `json:"version"`
	IntroducedBy string   `json:"introduced_by,omitempty"`
	License      string   `json:"license,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// PromptDetail is a catalog entry with its templates.
type PromptDetail struct {
	PromptSummary
	System    string   `json:"system"`
	User      string   `json:"user"`
	Assistant string   `json:"assistant,omitempty"`
	Authors   []string `json:"authors,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Variables []string `json:"variables"`
}

// PromptListResponse is the body of GET /v1/prompts.
type PromptListResponse struct {
	Items []PromptSummary `json:"items"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version"`
}

// ProviderUsage is the token consumption of one provider in the window.
// Timestamps are unix milliseconds; remaining is -1 when unlimited.
type ProviderUsage struct {
	Provider    string `json:"provider"`
	Action      string `json:"action"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	TokensLimit int64  `json:"tokens_limit"`
	TokensUsed  int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"`
	IsExhausted bool   `json:"is_exhausted"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period    string          `json:"period"`
	Providers []ProviderUsage `json:"providers"`
}

func usageToDTO(r usageuc.Report) UsageResponse {
	out := UsageResponse{Period: string(r.Period), Providers: make([]ProviderUsage, len(r.Providers))}
	for i, p := range r.Providers {
		out.Providers[i] = ProviderUsage{
			Provider:    p.Provider,
			Action:      string(p.Action),
			PeriodStart: unixMilli(p.Start),
			PeriodEnd:   unixMilli(p.End),
			TokensLimit: p.Limit,
			TokensUsed:  p.Used,
			Remaining:   p.Remaining,
			IsExhausted: p.Exhausted,
		}
	}
	return out
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func queriesFromDTO(items []QueryItem) ([]domain.QueryItem, error) {
	out := make([]domain.QueryItem, len(items))
	for i, it := range items {
		q, err := domain.NewQueryItem(it.QID, it.Text)
		if err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
		out[i] = q
	}
	if err := domain.ValidateUniqueQIDs(out); err != nil {
		return nil, fmt.Errorf("queries: %w", err)
	}
	return out, nil
}

func hitsFromDTO(hits []SearchHit) []domain.SearchHit {
	out := make([]domain.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = domain.SearchHit{DocID: h.DocID, Score: h.Score, Content: h.Content, Metadata: h.Metadata}
	}
	return out
}

func hitsToDTO(hits []domain.SearchHit) []SearchHit {
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{DocID: h.DocID, Score: h.Score, Content: h.Content, Metadata: h.Metadata}
	}
	return out
}

func contextsFromDTO(in map[string][]SearchHit) map[string][]domain.SearchHit {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]domain.SearchHit, len(in))
	for qid, hits := range in {
		out[qid] = hitsFromDTO(hits)
	}
	return out
}

func resultsToDTO(results []domain.ReformulationResult) []ReformulationResult {
	out := make([]ReformulationResult, len(results))
	for i, r := range results {
		out[i] = ReformulationResult{
			QID:          r.QID,
			Original:     r.Original,
			Reformulated: r.Reformulated,
			Metadata:     r.Metadata,
		}
	}
	return out
}

func promptSummary(e prompt.Entry) PromptSummary {
	return PromptSummary{
		ID:           e.ID,
		MethodFamily: e.MethodFamily,
		Version:      e.Version,
		IntroducedBy: e.IntroducedBy,
		License:      e.License,
		Tags:         e.Tags,
	}
}

func promptDetail(e prompt.Entry) PromptDetail {
	return PromptDetail{
		PromptSummary: promptSummary(e),
		System:        e.System,
		User:          e.User,
		Assistant:     e.Assistant,
		Authors:       e.Authors,
		Notes:         e.Notes,
		Variables:     e.Variables(),
	}
}

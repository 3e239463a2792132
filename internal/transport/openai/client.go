// Package openai adapts OpenAI-compatible APIs (OpenAI, vLLM, Ollama, Nebius)
// to the chat and embedding capabilities.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds the provider connection settings shared by chat and embeddings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	User    string
	// Budget, when set, gates every request and is charged its total tokens.
	Budget Budget
}

// Budget is the token budget consumed by a client.
type Budget interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

func newClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// apiError extracts a readable message from a provider error.
func apiError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("api error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("api error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("request failed: %w", err)
}

// extractDetail reads the "detail" field some providers use instead of "error".
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

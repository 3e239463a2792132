// Package llm defines the chat-completion capability consumed by reformulators.
package llm

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// Default sampling settings.
const (
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 256
)

// Client sends one chat completion request and returns the first choice.
// Implementations own retries and timeouts.
type Client interface {
	Chat(ctx context.Context, msgs []domain.Message, temperature float64, maxTokens int) (string, error)
}

// MultiClient is implemented by providers that can return n choices per request.
type MultiClient interface {
	Client
	ChatN(ctx context.Context, msgs []domain.Message, temperature float64, maxTokens, n int) ([]string, error)
}

// Settings are the per-client sampling defaults.
// A nil Temperature is unset; a pointer to 0 requests greedy sampling.
type Settings struct {
	Model       string   `yaml:"model" mapstructure:"model"`
	Temperature *float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int      `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Temperature returns a Settings.Temperature value for t.
func Temperature(t float64) *float64 {
	return &t
}

// WithDefaults fills unset fields.
func (s Settings) WithDefaults() Settings {
	if s.Temperature == nil {
		s.Temperature = Temperature(DefaultTemperature)
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	return s
}

// ChatN asks c for n completions, in one request when c supports it.
func ChatN(ctx context.Context, c Client, msgs []domain.Message, temperature float64, maxTokens, n int) ([]string, error) {
	if n < 1 {
		return nil, domain.Configurationf("completion count must be >= 1, got %d", n)
	}
	if mc, ok := c.(MultiClient); ok {
		out, err := mc.ChatN(ctx, msgs, temperature, maxTokens, n)
		if err != nil {
			return nil, fmt.Errorf("%d completions: %w", n, err)
		}
		return out, nil
	}

	out := make([]string, 0, n)
	for i := range n {
		text, err := c.Chat(ctx, msgs, temperature, maxTokens)
		if err != nil {
			return nil, fmt.Errorf("completion %d/%d: %w", i+1, n, err)
		}
		out = append(out, text)
	}
	return out, nil
}

// Factory builds a client bound to one model.
type Factory func(model string) (Client, error)

package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/metrics"
)

var (
	errEmptyChoices     = errors.New("empty choices in completion response")
	errMalformedChoices = errors.New("malformed choices in completion response")
)

// Chat is a chat completion client bound to one model.
type Chat struct {
	client *openai.Client
	model  string
	user   string
	budget Budget
	logger *zap.Logger
}

// NewChat creates a chat client. The model is mandatory.
func NewChat(cfg Config, logger *zap.Logger) (*Chat, error) {
	if cfg.Model == "" {
		return nil, domain.Configurationf("llm model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chat{
		client: newClient(cfg),
		model:  cfg.Model,
		user:   cfg.User,
		budget: cfg.Budget,
		logger: logger.With(zap.String("model", cfg.Model)),
	}, nil
}

// Model returns the bound model name.
func (c *Chat) Model() string { return c.model }

// Chat implements llm.Client.
func (c *Chat) Chat(ctx context.Context, msgs []domain.Message, temperature float64, maxTokens int) (string, error) {
	out, err := c.complete(ctx, msgs, temperature, maxTokens, 1)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// ChatN implements llm.MultiClient using the n parameter.
func (c *Chat) ChatN(ctx context.Context, msgs []domain.Message, temperature float64, maxTokens, n int) ([]string, error) {
	return c.complete(ctx, msgs, temperature, maxTokens, n)
}

// complete asks for n choices. Providers that ignore n (vLLM, Ollama) return
// fewer; the remainder is requested again until n choices are collected.
func (c *Chat) complete(
	ctx context.Context, msgs []domain.Message, temperature float64, maxTokens, n int,
) ([]string, error) {
	n = max(1, n)
	out := make([]string, 0, n)
	for len(out) < n {
		want := n - len(out)
		got, err := c.request(ctx, msgs, temperature, maxTokens, want)
		if err != nil {
			return nil, err
		}
		if len(got) < want {
			c.logger.Debug("provider returned fewer choices than requested",
				zap.Int("requested", want), zap.Int("returned", len(got)))
		}
		out = append(out, got...)
	}
	return out[:n], nil
}

// request sends one completion request and returns its choices in index order.
func (c *Chat) request(
	ctx context.Context, msgs []domain.Message, temperature float64, maxTokens, n int,
) ([]string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(msgs),
		Temperature: wireTemperature(temperature),
		MaxTokens:   maxTokens,
		User:        c.user,
	}
	if n > 1 {
		req.N = n
	}
	if c.budget != nil {
		if err := c.budget.Check(ctx); err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(c.model, "rejected").Inc()
			return nil, fmt.Errorf("chat %s: %w", c.model, err)
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(c.model, "api_error").Inc()
		c.logger.Warn("chat completion failed", zap.Error(err), zap.Duration("duration", duration))
		return nil, domain.NewLLMError(c.model, apiError(err))
	}
	if c.budget != nil {
		c.budget.Record(int64(resp.Usage.TotalTokens))
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(c.model, "empty_response").Inc()
		return nil, domain.NewLLMError(c.model, errEmptyChoices)
	}
	out, err := orderChoices(resp.Choices, n)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(c.model, "malformed_response").Inc()
		return nil, domain.NewLLMError(c.model, err)
	}

	metrics.LLMRequestsTotal.WithLabelValues(c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())
	metrics.LLMTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	domain.UsageFromContext(ctx).Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	c.logger.Debug("chat completion",
		zap.Int("choices", len(out)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", duration),
	)
	return out, nil
}

// orderChoices places choices by index. Indexes must be distinct and within
// [0, len(choices)); more than n choices is a protocol violation.
func orderChoices(choices []openai.ChatCompletionChoice, n int) ([]string, error) {
	if len(choices) > n {
		return nil, fmt.Errorf("%w: %d choices for n=%d", errMalformedChoices, len(choices), n)
	}
	out := make([]string, len(choices))
	seen := make([]bool, len(choices))
	for _, ch := range choices {
		if ch.Index < 0 || ch.Index >= len(out) {
			return nil, fmt.Errorf("%w: index %d out of range [0, %d)", errMalformedChoices, ch.Index, len(out))
		}
		if seen[ch.Index] {
			return nil, fmt.Errorf("%w: duplicate index %d", errMalformedChoices, ch.Index)
		}
		seen[ch.Index] = true
		out[ch.Index] = ch.Message.Content
	}
	return out, nil
}

// wireTemperature maps 0 to the smallest float32: go-openai omits a zero
// temperature and the provider would apply its own default.
func wireTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// HealthCheck verifies API availability via ListModels.
func (c *Chat) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return domain.NewLLMError(c.model, apiError(err))
	}
	return nil
}

func toOpenAIMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

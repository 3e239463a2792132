package queryforge

import (
	"context"
	"errors"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/llm"
)

// Chat message roles.
const (
	RoleSystem    = domain.RoleSystem
	RoleUser      = domain.RoleUser
	RoleAssistant = domain.RoleAssistant
)

// Message is a single chat message.
type Message struct {
	Role    string
	Content string
}

// LLM is a chat-completion provider. Implementations own retries and timeouts.
type LLM interface {
	Chat(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (string, error)
}

// llmAdapter binds a public LLM to one model for the internal llm.Client.
type llmAdapter struct {
	inner LLM
	model string
}

var _ llm.Client = (*llmAdapter)(nil)

func (a *llmAdapter) Chat(ctx context.Context, msgs []domain.Message, temperature float64, maxTokens int) (string, error) {
	in := make([]Message, len(msgs))
	for i, m := range msgs {
		in[i] = Message{Role: m.Role, Content: m.Content}
	}
	out, err := a.inner.Chat(ctx, a.model, in, temperature, maxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrLLM) || errors.Is(err, domain.ErrBudgetExceeded) {
			return "", err
		}
		return "", domain.NewLLMError(a.model, err)
	}
	return out, nil
}

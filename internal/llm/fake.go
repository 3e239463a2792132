package llm

import (
	"context"
	"sync"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// Call records one request seen by Fake.
type Call struct {
	Messages    []domain.Message
	Temperature float64
	MaxTokens   int
}

// Fake is a scripted Client for tests and dry runs. Respond picks the reply;
// when nil, Fake echoes the last message content.
type Fake struct {
	Respond func(msgs []domain.Message) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Chat implements Client.
func (f *Fake) Chat(_ context.Context, msgs []domain.Message, temperature float64, maxTokens int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Messages: msgs, Temperature: temperature, MaxTokens: maxTokens})
	f.mu.Unlock()

	if f.Respond != nil {
		return f.Respond(msgs)
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[len(msgs)-1].Content, nil
}

// Calls returns a copy of the recorded requests.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

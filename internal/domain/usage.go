package domain

import (
	"context"
	"sync"
)

type usageKey struct{}

// TokenUsage accumulates LLM token counts for one request. Safe for
// concurrent use since batch generation runs on several goroutines.
type TokenUsage struct {
	mu               sync.Mutex
	promptTokens     int
	completionTokens int
	calls            int
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the collector or nil.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(usageKey{}).(*TokenUsage)
	return u
}

// Add records one completion call. No-op on a nil receiver.
func (u *TokenUsage) Add(prompt, completion int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.promptTokens += prompt
	u.completionTokens += completion
	u.calls++
	u.mu.Unlock()
}

// Snapshot returns prompt tokens, completion tokens and call count.
func (u *TokenUsage) Snapshot() (prompt, completion, calls int) {
	if u == nil {
		return 0, 0, 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.promptTokens, u.completionTokens, u.calls
}

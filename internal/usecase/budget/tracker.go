// Package budget enforces daily and monthly token budgets on the language
// model and embedding providers.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/metrics"
)

// Action defines behavior when the token budget is exhausted.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject fails the request with domain.ErrBudgetExceeded.
	ActionReject Action = "reject"
)

// ParseAction validates an action name. Empty means ActionWarn.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case "":
		return ActionWarn, nil
	case ActionWarn, ActionReject:
		return a, nil
	default:
		return "", domain.Configurationf("budget action must be warn or reject, got %q", s)
	}
}

// Store persists the counters. IncrBy may be called repeatedly for one key.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// Limits configure a Tracker. Zero means unlimited.
type Limits struct {
	Daily   int64
	Monthly int64
	Action  Action
}

// Tracker counts tokens in memory with optional write-behind persistence.
// Check never leaves the process.
type Tracker struct {
	mu             sync.Mutex
	dailyUsed      int64
	monthlyUsed    int64
	limits         Limits
	provider       string
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	now            func() time.Time
	logger         *zap.Logger
}

// NewTracker creates a tracker for provider.
func NewTracker(provider string, limits Limits, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.Action == "" {
		limits.Action = ActionWarn
	}
	t := &Tracker{
		limits:   limits,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	now := t.now()
	t.lastDayReset = truncateToDay(now)
	t.lastMonthReset = truncateToMonth(now)
	return t
}

// WithStore attaches a persistence store and loads the current counters.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.store = store
	t.loadFromStore(ctx)
	return t
}

func (t *Tracker) loadFromStore(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if val, err := t.store.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = val
	} else {
		t.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}
	if val, err := t.store.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = val
	} else {
		t.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}
	t.publish()

	t.logger.Info("Budget loaded from store",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
}

func (t *Tracker) dailyKey(at time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, t.provider, at.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(at time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, t.provider, at.Format("2006-01"))
}

// Check reports whether a new request may go out.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	dailyExceeded := t.limits.Daily > 0 && t.dailyUsed >= t.limits.Daily
	monthlyExceeded := t.limits.Monthly > 0 && t.monthlyUsed >= t.limits.Monthly
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	metrics.LLMBudgetExceededTotal.WithLabelValues(t.provider, string(t.limits.Action)).Inc()
	if t.limits.Action == ActionReject {
		return fmt.Errorf("%w: provider %s used %d/%d tokens today, %d/%d this month",
			domain.ErrBudgetExceeded, t.provider,
			t.dailyUsed, t.limits.Daily, t.monthlyUsed, t.limits.Monthly)
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.limits.Daily),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.limits.Monthly),
	)
	return nil
}

// Record adds consumed tokens, then writes them behind to the store.
func (t *Tracker) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	t.publish()
	store := t.store
	now := t.now()
	t.mu.Unlock()

	if store == nil {
		return
	}

	// Store writes must not block the caller on a slow Redis.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, t.dailyKey(now), tokens); err != nil {
		t.logger.Warn("Failed to persist daily budget", zap.Error(err))
	}
	if err := store.IncrBy(ctx, t.monthlyKey(now), tokens); err != nil {
		t.logger.Warn("Failed to persist monthly budget", zap.Error(err))
	}
}

// Period is a budget window.
type Period struct {
	Limit     int64
	Used      int64
	Remaining int64 // -1 when unlimited
	Start     time.Time
	End       time.Time
}

// Exhausted reports whether a limited period has no tokens left.
func (p Period) Exhausted() bool { return p.Limit > 0 && p.Remaining == 0 }

// Status is a consistent view of both windows.
type Status struct {
	Provider string
	Action   Action
	Daily    Period
	Monthly  Period
}

// Status returns the current counters.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return Status{
		Provider: t.provider,
		Action:   t.limits.Action,
		Daily: Period{
			Limit:     t.limits.Daily,
			Used:      t.dailyUsed,
			Remaining: remaining(t.limits.Daily, t.dailyUsed),
			Start:     t.lastDayReset,
			End:       t.lastDayReset.AddDate(0, 0, 1),
		},
		Monthly: Period{
			Limit:     t.limits.Monthly,
			Used:      t.monthlyUsed,
			Remaining: remaining(t.limits.Monthly, t.monthlyUsed),
			Start:     t.lastMonthReset,
			End:       t.lastMonthReset.AddDate(0, 1, 0),
		},
	}
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(0, limit-used)
}

// publish exports the remaining tokens. Caller holds mu.
func (t *Tracker) publish() {
	if t.limits.Daily > 0 {
		metrics.LLMBudgetRemaining.WithLabelValues(t.provider, "day").Set(float64(remaining(t.limits.Daily, t.dailyUsed)))
	}
	if t.limits.Monthly > 0 {
		metrics.LLMBudgetRemaining.WithLabelValues(t.provider, "month").
			Set(float64(remaining(t.limits.Monthly, t.monthlyUsed)))
	}
}

// resetIfNeeded zeroes counters when the day or month rolls over. Caller holds mu.
func (t *Tracker) resetIfNeeded() {
	now := t.now()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.dailyUsed = 0
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthlyUsed = 0
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

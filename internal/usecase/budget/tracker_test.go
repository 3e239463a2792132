package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

func fixedClock(t *Tracker, at time.Time) *time.Time {
	now := at
	t.now = func() time.Time { return now }
	t.lastDayReset = truncateToDay(now)
	t.lastMonthReset = truncateToMonth(now)
	return &now
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"", ActionWarn, false},
		{"warn", ActionWarn, false},
		{"reject", ActionReject, false},
		{"block", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("ParseAction(%q): expected configuration error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAction(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTracker_DailyReject(t *testing.T) {
	tr := NewTracker("test", Limits{Daily: 100, Action: ActionReject}, zap.NewNop())

	tr.Record(99)
	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("expected nil below the limit, got %v", err)
	}
	tr.Record(1)
	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestTracker_MonthlyReject(t *testing.T) {
	tr := NewTracker("test", Limits{Monthly: 50, Action: ActionReject}, zap.NewNop())

	tr.Record(60)
	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestTracker_WarnAllows(t *testing.T) {
	tr := NewTracker("test", Limits{Daily: 10}, zap.NewNop())

	tr.Record(500)
	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("warn action must not fail, got %v", err)
	}
	if tr.Status().Action != ActionWarn {
		t.Errorf("default action = %q", tr.Status().Action)
	}
}

func TestTracker_Unlimited(t *testing.T) {
	tr := NewTracker("test", Limits{Action: ActionReject}, zap.NewNop())

	tr.Record(1 << 40)
	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("unlimited budget must not fail, got %v", err)
	}
	st := tr.Status()
	if st.Daily.Remaining != -1 || st.Monthly.Remaining != -1 {
		t.Errorf("remaining = %d/%d, want -1/-1", st.Daily.Remaining, st.Monthly.Remaining)
	}
	if st.Daily.Exhausted() || st.Monthly.Exhausted() {
		t.Error("unlimited period reported exhausted")
	}
}

func TestTracker_IgnoresNonPositive(t *testing.T) {
	tr := NewTracker("test", Limits{Daily: 100}, zap.NewNop())
	tr.Record(0)
	tr.Record(-5)
	if used := tr.Status().Daily.Used; used != 0 {
		t.Errorf("used = %d", used)
	}
}

func TestTracker_Status(t *testing.T) {
	tr := NewTracker("openai", Limits{Daily: 100, Monthly: 1000}, zap.NewNop())
	fixedClock(tr, time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))

	tr.Record(120)
	st := tr.Status()

	if st.Provider != "openai" {
		t.Errorf("provider = %q", st.Provider)
	}
	if st.Daily.Used != 120 || st.Daily.Remaining != 0 || !st.Daily.Exhausted() {
		t.Errorf("daily = %+v", st.Daily)
	}
	if st.Monthly.Remaining != 880 || st.Monthly.Exhausted() {
		t.Errorf("monthly = %+v", st.Monthly)
	}
	if want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC); !st.Daily.Start.Equal(want) {
		t.Errorf("daily start = %v", st.Daily.Start)
	}
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC); !st.Daily.End.Equal(want) {
		t.Errorf("daily end = %v", st.Daily.End)
	}
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !st.Monthly.End.Equal(want) {
		t.Errorf("monthly end = %v", st.Monthly.End)
	}
}

func TestTracker_Rollover(t *testing.T) {
	tr := NewTracker("test", Limits{Daily: 100, Monthly: 1000, Action: ActionReject}, zap.NewNop())
	now := fixedClock(tr, time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC))

	tr.Record(100)
	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	*now = time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)
	if err := tr.Check(context.Background()); err != nil {
		t.Fatalf("expected reset after rollover, got %v", err)
	}
	st := tr.Status()
	if st.Daily.Used != 0 || st.Monthly.Used != 0 {
		t.Errorf("used after rollover = %d/%d", st.Daily.Used, st.Monthly.Used)
	}
}

func TestTracker_DayRolloverKeepsMonth(t *testing.T) {
	tr := NewTracker("test", Limits{Daily: 100, Monthly: 1000}, zap.NewNop())
	now := fixedClock(tr, time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC))

	tr.Record(70)
	*now = now.Add(24 * time.Hour)
	tr.Record(5)

	st := tr.Status()
	if st.Daily.Used != 5 || st.Monthly.Used != 75 {
		t.Errorf("used = %d/%d, want 5/75", st.Daily.Used, st.Monthly.Used)
	}
}

type fakeStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string]int64{}} }

func (f *fakeStore) IncrBy(_ context.Context, key string, val int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] += val
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.data[key], nil
}

func TestTracker_WithStoreLoads(t *testing.T) {
	st := newFakeStore()
	st.data["queryforge:budget:prov:daily:2026-07-04"] = 300
	st.data["queryforge:budget:prov:monthly:2026-07"] = 5000

	tr := NewTracker("prov", Limits{Daily: 1000}, zap.NewNop())
	fixedClock(tr, time.Date(2026, 7, 4, 8, 0, 0, 0, time.UTC))
	tr.WithStore(context.Background(), st)

	status := tr.Status()
	if status.Daily.Used != 300 || status.Monthly.Used != 5000 {
		t.Errorf("used = %d/%d, want 300/5000", status.Daily.Used, status.Monthly.Used)
	}
}

func TestTracker_RecordWritesBehind(t *testing.T) {
	st := newFakeStore()
	tr := NewTracker("prov", Limits{Daily: 1000}, zap.NewNop())
	fixedClock(tr, time.Date(2026, 7, 4, 8, 0, 0, 0, time.UTC))
	tr.WithStore(context.Background(), st)

	tr.Record(100)
	tr.Record(200)

	st.mu.Lock()
	defer st.mu.Unlock()
	if v := st.data["queryforge:budget:prov:daily:2026-07-04"]; v != 300 {
		t.Errorf("stored daily = %d", v)
	}
	if v := st.data["queryforge:budget:prov:monthly:2026-07"]; v != 300 {
		t.Errorf("stored monthly = %d", v)
	}
}

func TestTracker_StoreErrorsStayInMemory(t *testing.T) {
	st := newFakeStore()
	st.getErr = errors.New("connection refused")
	st.setErr = errors.New("write timeout")

	tr := NewTracker("prov", Limits{Daily: 100, Action: ActionReject}, zap.NewNop())
	tr.WithStore(context.Background(), st)
	if used := tr.Status().Daily.Used; used != 0 {
		t.Fatalf("used after failed load = %d", used)
	}

	tr.Record(100)
	if used := tr.Status().Daily.Used; used != 100 {
		t.Errorf("used = %d", used)
	}
	if err := tr.Check(context.Background()); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

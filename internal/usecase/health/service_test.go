package health

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(map[string]Checker{"llm": &mockChecker{}, "searcher": &mockChecker{}}, 0)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["llm"] != CheckOK || r.Checks["searcher"] != CheckOK {
		t.Errorf("checks = %v", r.Checks)
	}
}

func TestCheck_OneFailing(t *testing.T) {
	svc := New(map[string]Checker{
		"llm":      &mockChecker{err: errors.New("401")},
		"searcher": &mockChecker{},
	}, 0)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["llm"] != CheckError {
		t.Errorf("expected llm %q, got %q", CheckError, r.Checks["llm"])
	}
	if r.Checks["searcher"] != CheckOK {
		t.Errorf("expected searcher %q, got %q", CheckOK, r.Checks["searcher"])
	}
}

func TestCheck_NoChecks(t *testing.T) {
	r := New(nil, 0).Check(context.Background())
	if r.Status != Healthy || len(r.Checks) != 0 {
		t.Errorf("report = %+v", r)
	}
}

func TestCheck_SkipsNilAndTimesOut(t *testing.T) {
	slow := CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := New(map[string]Checker{"slow": slow, "nil": nil}, 10*time.Millisecond)
	if got := svc.Names(); !slices.Equal(got, []string{"slow"}) {
		t.Fatalf("names = %v", got)
	}
	r := svc.Check(context.Background())
	if r.Status != Degraded || r.Checks["slow"] != CheckError {
		t.Errorf("report = %+v", r)
	}
}

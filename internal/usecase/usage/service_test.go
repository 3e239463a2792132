package usage

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/usecase/budget"
)

type staticReader budget.Status

func (r staticReader) Status() budget.Status { return budget.Status(r) }

var (
	dayStart   = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	monthStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func llmStatus() staticReader {
	return staticReader{
		Provider: "llm",
		Action:   budget.ActionReject,
		Daily:    budget.Period{Limit: 10000, Used: 10000, Remaining: 0, Start: dayStart, End: dayStart.AddDate(0, 0, 1)},
		Monthly: budget.Period{
			Limit: 100000, Used: 50000, Remaining: 50000, Start: monthStart, End: monthStart.AddDate(0, 1, 0),
		},
	}
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{"": PeriodDay, "day": PeriodDay, "month": PeriodMonth} {
		got, err := ParsePeriod(in)
		if err != nil || got != want {
			t.Errorf("ParsePeriod(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePeriod("total"); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestReport_Day(t *testing.T) {
	svc := New(llmStatus(), nil)
	r := svc.Report(PeriodDay)

	if r.Period != PeriodDay || len(r.Providers) != 1 {
		t.Fatalf("report = %+v", r)
	}
	p := r.Providers[0]
	if p.Provider != "llm" || p.Action != budget.ActionReject {
		t.Errorf("provider = %+v", p)
	}
	if p.Limit != 10000 || p.Used != 10000 || !p.Exhausted {
		t.Errorf("daily = %+v", p)
	}
	if !p.Start.Equal(dayStart) || !p.End.Equal(dayStart.AddDate(0, 0, 1)) {
		t.Errorf("window = %v..%v", p.Start, p.End)
	}
}

func TestReport_MonthAndUnlimited(t *testing.T) {
	unlimited := staticReader{
		Provider: "embedding",
		Action:   budget.ActionWarn,
		Daily:    budget.Period{Remaining: -1, Used: 7},
		Monthly:  budget.Period{Remaining: -1, Used: 70},
	}
	r := New(llmStatus(), unlimited).Report(PeriodMonth)

	if len(r.Providers) != 2 {
		t.Fatalf("providers = %+v", r.Providers)
	}
	if p := r.Providers[0]; p.Used != 50000 || p.Remaining != 50000 || p.Exhausted {
		t.Errorf("llm monthly = %+v", p)
	}
	if p := r.Providers[1]; p.Used != 70 || p.Remaining != -1 || p.Exhausted {
		t.Errorf("embedding monthly = %+v", p)
	}
}

func TestReport_NoBudgets(t *testing.T) {
	r := New().Report(PeriodDay)
	if r.Providers == nil || len(r.Providers) != 0 {
		t.Errorf("providers = %#v", r.Providers)
	}
}

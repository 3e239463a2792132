// Package usage reports token budget consumption per provider.
package usage

import (
	"time"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/usecase/budget"
)

// Period is the reporting window.
type Period string

// Reporting windows.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name. Empty means PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodDay, nil
	case PeriodDay, PeriodMonth:
		return p, nil
	default:
		return "", domain.Configurationf("period must be day or month, got %q", s)
	}
}

// BudgetReader exposes the state of one provider budget.
type BudgetReader interface {
	Status() budget.Status
}

// ProviderReport is the usage of one provider in the window.
type ProviderReport struct {
	Provider  string
	Action    budget.Action
	Start     time.Time
	End       time.Time
	Limit     int64
	Used      int64
	Remaining int64 // -1 when unlimited
	Exhausted bool
}

// Report lists provider usage in provider registration order.
type Report struct {
	Period    Period
	Providers []ProviderReport
}

// Service handles usage reporting.
type Service struct {
	readers []BudgetReader
}

// New creates a Service. Nil readers are skipped, so an unconfigured budget
// reports nothing.
func New(readers ...BudgetReader) *Service {
	s := &Service{}
	for _, r := range readers {
		if r != nil {
			s.readers = append(s.readers, r)
		}
	}
	return s
}

// Report builds the usage report for period.
func (s *Service) Report(period Period) Report {
	out := Report{Period: period, Providers: make([]ProviderReport, 0, len(s.readers))}
	for _, r := range s.readers {
		st := r.Status()
		p := st.Daily
		if period == PeriodMonth {
			p = st.Monthly
		}
		out.Providers = append(out.Providers, ProviderReport{
			Provider:  st.Provider,
			Action:    st.Action,
			Start:     p.Start,
			End:       p.End,
			Limit:     p.Limit,
			Used:      p.Used,
			Remaining: p.Remaining,
			Exhausted: p.Exhausted(),
		})
	}
	return out
}

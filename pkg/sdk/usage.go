package queryforge

import (
	"fmt"
	"time"

	usageuc "github.com/kailas-cloud/queryforge/internal/usecase/usage"
)

// UsagePeriod is the budget window of a usage report.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = UsagePeriod(usageuc.PeriodDay)
	PeriodMonth UsagePeriod = UsagePeriod(usageuc.PeriodMonth)
)

// ProviderUsage is the token usage of one provider in a window.
type ProviderUsage struct {
	Provider  string
	Action    string
	Start     time.Time
	End       time.Time
	Limit     int64 // 0 when unlimited
	Used      int64
	Remaining int64 // -1 when unlimited
	Exhausted bool
}

// UsageReport is empty unless WithTokenBudget was given.
type UsageReport struct {
	Period    UsagePeriod
	Providers []ProviderUsage
}

// Usage reports token consumption against the budget for period.
// An empty period means PeriodDay.
func (c *Client) Usage(period UsagePeriod) (UsageReport, error) {
	p, err := usageuc.ParsePeriod(string(period))
	if err != nil {
		return UsageReport{}, fmt.Errorf("usage: %w", err)
	}
	r := c.usageSvc.Report(p)
	out := UsageReport{Period: UsagePeriod(r.Period), Providers: make([]ProviderUsage, len(r.Providers))}
	for i, pr := range r.Providers {
		out.Providers[i] = ProviderUsage{
			Provider:  pr.Provider,
			Action:    string(pr.Action),
			Start:     pr.Start,
			End:       pr.End,
			Limit:     pr.Limit,
			Used:      pr.Used,
			Remaining: pr.Remaining,
			Exhausted: pr.Exhausted,
		}
	}
	return out, nil
}

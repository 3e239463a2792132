// Package health aggregates dependency checks for the /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service runs the named checks concurrently.
type Service struct {
	checks  map[string]Checker
	timeout time.Duration
}

// New creates a Service. Nil checkers are skipped; timeout <= 0 means 5s per check.
func New(checks map[string]Checker, timeout time.Duration) *Service {
	clean := make(map[string]Checker, len(checks))
	for name, c := range checks {
		if c != nil {
			clean[name] = c
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{checks: clean, timeout: timeout}
}

// Names returns the configured check names, sorted.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every check. Any failure degrades the report.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(s.checks))
	)
	for name, c := range s.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := CheckOK
			if err := c.HealthCheck(ctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

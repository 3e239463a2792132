// Package metrics holds the Prometheus collectors. Nothing is registered at
// init; the composition root calls Register once.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "queryforge"

var registerOnce sync.Once

// Register registers every collector with the default registry. Idempotent.
func Register() {
	registerOnce.Do(func() {
		RegisterHTTPMetrics()
		RegisterLLMMetrics()
		RegisterSearchMetrics()
		RegisterReformulationMetrics()
	})
}

// mustRegister tolerates collectors that are already registered so that the
// per-group functions can be called from tests and from Register.
func mustRegister(cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

// Status maps an error to the status label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package checks

import (
	"context"

	"github.com/eternalmemory/eternal/internal/monitoring"
)

// BreakerState is satisfied by the LLM client.
type BreakerState interface {
	Enabled() bool
	State() string
}

// LLM reports the language model circuit breaker. An open breaker degrades the service
// without taking it out of rotation.
func LLM(client BreakerState) monitoring.Check {
	return monitoring.NewCheck("llm", func(context.Context) monitoring.ProbeResult {
		if client == nil || !client.Enabled() {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "disabled"}
		}
		state := client.State()
		if state == "open" {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "circuit open"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: state}
	})
}

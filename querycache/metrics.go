package querycache

import "time"

// Outcome labels a finished resolve.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// RawModelLabel is reported as the model of raw queries.
const RawModelLabel = "__raw__"

// Metrics observes resolver outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// ObserveResolve is called once per Resolve with the outcome and duration.
	ObserveResolve(model string, outcome Outcome, d time.Duration)
	// ObserveError is called for every failed Resolve or Invalidate with the
	// error category.
	ObserveError(model string, category string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveResolve(string, Outcome, time.Duration) {}
func (noopMetrics) ObserveError(string, string)                   {}

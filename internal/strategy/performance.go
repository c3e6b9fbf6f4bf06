package strategy

import (
	"math"
	"time"

	"github.com/sells-group/ingest-cli/internal/model"
)

// DefaultHalfLife is the number of attempts after which an outcome carries
// half its original weight in the rolling rates.
const DefaultHalfLife = 5.0

// Outcome is the result of one execution attempt with a strategy.
type Outcome struct {
	Succeeded      bool
	Status         string
	CandidateCount int
	At             time.Time
}

// MergeOutcome folds an attempt into a strategy's persisted record.
//
// Rolling rates are exponentially decayed per attempt:
//
//	rate' = rate * 2^(-1/halfLife) + x * (1 - 2^(-1/halfLife))
//
// where x is 1 for a success (or a yielding attempt) and 0 otherwise. The
// first attempt seeds the rate with x.
func MergeOutcome(prev model.StrategyPerformance, o Outcome, halfLife float64) model.StrategyPerformance {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	keep := math.Pow(2, -1/halfLife)

	next := prev
	success := indicator(o.Succeeded)
	yield := indicator(o.Succeeded && o.CandidateCount > 0)

	if prev.Attempts <= 0 {
		next.RollingSuccessRate = success
		next.RollingYieldRate = yield
	} else {
		next.RollingSuccessRate = round4(prev.RollingSuccessRate*keep + success*(1-keep))
		next.RollingYieldRate = round4(prev.RollingYieldRate*keep + yield*(1-keep))
	}

	next.Attempts = max(prev.Attempts, 0) + 1
	if o.Succeeded {
		next.Successes = max(prev.Successes, 0) + 1
	} else {
		next.Failures = max(prev.Failures, 0) + 1
	}
	next.LastStatus = o.Status
	next.LastCandidateCount = max(o.CandidateCount, 0)
	if !o.At.IsZero() {
		at := o.At.UTC()
		next.LastAttemptAt = &at
	}
	return next
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Package converge decides when a refinement track has stopped making
// progress. Each track owns one Monitor; the two stop reasons (budget
// exhausted vs. stalled progress) are distinct and the budget check wins.
package converge

import (
	"fmt"

	"github.com/agenthands/coalesce/internal/core/model"
)

// StagnationThreshold is the new-unique count below which an iteration is
// considered stalled. Two consecutive stalled iterations stop the track.
const StagnationThreshold = 3

// Monitor tracks per-iteration trend data for one track.
type Monitor struct {
	metrics model.ConvergenceMetrics
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Record appends one iteration's counts to the trend sequences.
func (m *Monitor) Record(rawBatchSize, validCount, weakCount, totalAccumulated, newUniqueCount int) {
	m.metrics.RawBatchSizes = append(m.metrics.RawBatchSizes, rawBatchSize)
	m.metrics.ValidCounts = append(m.metrics.ValidCounts, validCount)
	m.metrics.WeakCounts = append(m.metrics.WeakCounts, weakCount)
	m.metrics.TotalAccumulated = append(m.metrics.TotalAccumulated, totalAccumulated)
	m.metrics.NewUniqueCounts = append(m.metrics.NewUniqueCounts, newUniqueCount)
}

// Decision is the outcome of a convergence check.
type Decision struct {
	Stop   bool
	Reason string
}

// ShouldStop evaluates the stop rule for the given completed-iteration count.
// The iteration cap is checked before stagnation, so hitting the budget on a
// stalled run reports the budget reason.
func (m *Monitor) ShouldStop(iteration, maxIterations int) Decision {
	if iteration >= maxIterations {
		return m.stop("maximum iterations reached")
	}
	n := len(m.metrics.NewUniqueCounts)
	if n >= 2 &&
		m.metrics.NewUniqueCounts[n-1] < StagnationThreshold &&
		m.metrics.NewUniqueCounts[n-2] < StagnationThreshold {
		return m.stop(fmt.Sprintf("convergence: fewer than %d new unique items for two consecutive iterations", StagnationThreshold))
	}
	return Decision{}
}

func (m *Monitor) stop(reason string) Decision {
	m.metrics.Converged = true
	m.metrics.Reason = reason
	return Decision{Stop: true, Reason: reason}
}

// Metrics returns a copy of the trend data collected so far.
func (m *Monitor) Metrics() model.ConvergenceMetrics {
	return m.metrics
}

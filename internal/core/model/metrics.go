package model

// ConvergenceMetrics holds the per-iteration trend sequences for one track.
// One value is appended to each slice per completed iteration.
type ConvergenceMetrics struct {
	RawBatchSizes    []int  `json:"raw_batch_sizes"`
	ValidCounts      []int  `json:"valid_counts"`
	WeakCounts       []int  `json:"weak_counts"`
	TotalAccumulated []int  `json:"total_accumulated"`
	NewUniqueCounts  []int  `json:"new_unique_counts"`
	Converged        bool   `json:"converged"`
	Reason           string `json:"reason,omitempty"`
}

// Iterations returns how many iterations have been recorded.
func (m *ConvergenceMetrics) Iterations() int {
	return len(m.NewUniqueCounts)
}

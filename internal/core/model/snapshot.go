package model

import "time"

// IterationSnapshot is an immutable audit record of one completed iteration
// on one track. Snapshots are append-only history; the control loop never
// reads them back.
type IterationSnapshot struct {
	Iteration        int       `json:"iteration"`
	Track            string    `json:"track"`
	Timestamp        time.Time `json:"timestamp"`
	RawBatchSize     int       `json:"raw_batch_size"`
	ValidCount       int       `json:"valid_count"`
	WeakCount        int       `json:"weak_count"`
	NewUniqueCount   int       `json:"new_unique_count"`
	TotalAccumulated int       `json:"total_accumulated"`
	ValidatorNotes   string    `json:"validator_notes,omitempty"`
	WeakKeys         []string  `json:"weak_keys,omitempty"`
}

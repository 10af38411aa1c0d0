// Package accum implements the deduplicating accumulator shared by the merge
// and relationship tracks. It owns the only writes to a track's accumulated
// set and rejection memory; both grow monotonically for the life of a run.
package accum

// Keyed is anything with a deterministic dedup identity.
type Keyed interface {
	Key() string
}

// Verdict is a validator rejection carrying the reason it was rejected.
type Verdict interface {
	Keyed
	Reason() string
}

// Result reports what one Apply pass did.
type Result struct {
	ValidCount     int
	NewUniqueCount int
}

// Apply folds one iteration's output into the persistent maps.
//
// Weak verdicts are written to the rejection memory first, so a key rejected
// this iteration is already filtered when the batch is scanned. Candidates
// whose key appears in the rejection memory (from any iteration) are
// discarded. Surviving candidates are inserted with last-write-wins
// semantics; NewUniqueCount counts only keys not previously accumulated.
func Apply[C Keyed, W Verdict](batch []C, weak []W, accumulated map[string]C, rejected map[string]string) Result {
	for _, w := range weak {
		rejected[w.Key()] = w.Reason()
	}

	var res Result
	for _, c := range batch {
		key := c.Key()
		if _, bad := rejected[key]; bad {
			continue
		}
		res.ValidCount++
		if _, seen := accumulated[key]; !seen {
			res.NewUniqueCount++
		}
		accumulated[key] = c
	}
	return res
}

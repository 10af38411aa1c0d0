package model

// CandidateMerge proposes that two concept names denote the same thing and
// should collapse into one canonical entry.
type CandidateMerge struct {
	ConceptA  string   `json:"concept_a"`
	ConceptB  string   `json:"concept_b"`
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants,omitempty"`
	Reasoning string   `json:"reasoning"`
}

// Key returns the order-insensitive pair identity.
func (m CandidateMerge) Key() string {
	return MergeKey(m.ConceptA, m.ConceptB)
}

// MergeWeakness is the validator's rejection verdict for one merge candidate.
type MergeWeakness struct {
	ConceptA          string `json:"concept_a"`
	ConceptB          string `json:"concept_b"`
	Canonical         string `json:"canonical,omitempty"`
	OriginalReasoning string `json:"original_reasoning,omitempty"`
	WeaknessReason    string `json:"weakness_reason"`
}

func (w MergeWeakness) Key() string {
	return MergeKey(w.ConceptA, w.ConceptB)
}

func (w MergeWeakness) Reason() string {
	return w.WeaknessReason
}

// Label renders the pair for prompt text and logs.
func (w MergeWeakness) Label() string {
	return w.ConceptA + " + " + w.ConceptB
}

package model

// CandidateRelationship proposes a directed, typed edge between two distinct
// concepts, e.g. "normalization" USED_FOR "database design".
type CandidateRelationship struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relation_type"`
	Reasoning    string `json:"reasoning"`
}

// Key returns the direction- and type-sensitive edge identity.
func (r CandidateRelationship) Key() string {
	return RelationshipKey(r.Source, r.Target, r.RelationType)
}

// RelationshipWeakness is the validator's rejection verdict for one
// relationship candidate.
type RelationshipWeakness struct {
	Source            string `json:"source"`
	Target            string `json:"target"`
	RelationType      string `json:"relation_type"`
	OriginalReasoning string `json:"original_reasoning,omitempty"`
	WeaknessReason    string `json:"weakness_reason"`
}

func (w RelationshipWeakness) Key() string {
	return RelationshipKey(w.Source, w.Target, w.RelationType)
}

func (w RelationshipWeakness) Reason() string {
	return w.WeaknessReason
}

func (w RelationshipWeakness) Label() string {
	return w.Source + " -[" + w.RelationType + "]-> " + w.Target
}

package model

import "time"

// Concept is a named entry in the concept bank. The name is the sole
// identity; comparisons are case-insensitive but the verbatim spelling is
// preserved for display.
type Concept struct {
	Name string `json:"name"`
}

// ConceptNode is the graph-store representation of a concept within a scope
// (e.g. one course). The refinement engine never creates or deletes these;
// they are written by the ingestion endpoints only.
type ConceptNode struct {
	UUID          string    `json:"uuid"`
	Name          string    `json:"name"`
	Scope         string    `json:"scope"`
	CreatedAt     time.Time `json:"created_at"`
	Definitions   []string  `json:"definitions,omitempty"`
	NameEmbedding []float32 `json:"name_embedding,omitempty"`
}

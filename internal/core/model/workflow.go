package model

import "fmt"

// ValidatorErrorPolicy controls what happens to a batch when the validation
// oracle call fails or returns an unparseable payload.
type ValidatorErrorPolicy string

const (
	// AcceptAll treats the whole batch as valid on validator failure
	// (fail-open, the reference behavior).
	AcceptAll ValidatorErrorPolicy = "accept_all"
	// RejectBatch discards the iteration's batch on validator failure
	// without writing anything to the rejection memory (fail-closed).
	RejectBatch ValidatorErrorPolicy = "reject_batch"
)

// WorkflowConfig is supplied once at construction and immutable thereafter.
type WorkflowConfig struct {
	MaxIterations    int                  `json:"max_iterations" toml:"max_iterations"`
	EnableHistory    bool                 `json:"enable_history" toml:"enable_history"`
	Verbose          bool                 `json:"verbose" toml:"verbose"`
	OnValidatorError ValidatorErrorPolicy `json:"on_validator_error" toml:"on_validator_error"`
}

// DefaultWorkflowConfig returns the reference defaults: ten iterations,
// history on, fail-open validation.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxIterations:    10,
		EnableHistory:    true,
		OnValidatorError: AcceptAll,
	}
}

// Validate reports configuration errors. These are fatal at construction;
// a workflow must refuse to start with an invalid config.
func (c WorkflowConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	switch c.OnValidatorError {
	case "", AcceptAll, RejectBatch:
	default:
		return fmt.Errorf("unknown on_validator_error policy %q", c.OnValidatorError)
	}
	return nil
}

// Policy returns the configured validator error policy, defaulting to
// fail-open when unset.
func (c WorkflowConfig) Policy() ValidatorErrorPolicy {
	if c.OnValidatorError == "" {
		return AcceptAll
	}
	return c.OnValidatorError
}

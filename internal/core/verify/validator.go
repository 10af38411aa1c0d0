// Package verify implements the candidate validator. The oracle contract is
// asymmetric on purpose: the response lists only the weak (rejected)
// candidates, and everything else in the batch is implicitly valid. An empty
// weak list is a legitimate "everything passed", not a parse failure.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/coalesce/internal/core/common"
	"github.com/agenthands/coalesce/internal/core/model"
	"github.com/agenthands/coalesce/internal/llm"
)

type Validator struct {
	LLM    llm.LLMClient
	Policy model.ValidatorErrorPolicy
	Log    *zap.SugaredLogger
}

func NewValidator(llmClient llm.LLMClient, policy model.ValidatorErrorPolicy, log *zap.SugaredLogger) *Validator {
	if policy == "" {
		policy = model.AcceptAll
	}
	return &Validator{LLM: llmClient, Policy: policy, Log: log}
}

// MergeResult is the verdict over one merge batch.
type MergeResult struct {
	Weak           []model.MergeWeakness `json:"weak"`
	Notes          string                `json:"notes"`
	TotalValidated int                   `json:"total_validated"`
	WeakCount      int                   `json:"weak_count"`
	// DiscardBatch is set only under the fail-closed policy when the oracle
	// call failed: the batch should be dropped without touching the
	// rejection memory.
	DiscardBatch bool `json:"-"`
}

// isAccepted reports whether a candidate key survived validation. Anything
// not flagged weak is accepted.
func (r MergeResult) isAccepted(key string) bool {
	for _, w := range r.Weak {
		if w.Key() == key {
			return false
		}
	}
	return true
}

// WeakKeys lists the rejected keys, for audit snapshots.
func (r MergeResult) WeakKeys() []string {
	keys := make([]string, 0, len(r.Weak))
	for _, w := range r.Weak {
		keys = append(keys, w.Key())
	}
	return keys
}

// RelationshipResult is the verdict over one relationship batch.
type RelationshipResult struct {
	Weak           []model.RelationshipWeakness `json:"weak"`
	Notes          string                       `json:"notes"`
	TotalValidated int                          `json:"total_validated"`
	WeakCount      int                          `json:"weak_count"`
	DiscardBatch   bool                         `json:"-"`
}

func (r RelationshipResult) isAccepted(key string) bool {
	for _, w := range r.Weak {
		if w.Key() == key {
			return false
		}
	}
	return true
}

func (r RelationshipResult) WeakKeys() []string {
	keys := make([]string, 0, len(r.Weak))
	for _, w := range r.Weak {
		keys = append(keys, w.Key())
	}
	return keys
}

// Merges validates a merge batch against the fetched evidence. On oracle
// failure the configured policy applies; the default accepts the whole batch
// (fail-open, the reference behavior).
func (v *Validator) Merges(ctx context.Context, batch []model.CandidateMerge, evidence map[string][]string) MergeResult {
	if len(batch) == 0 {
		return MergeResult{}
	}

	var candidates strings.Builder
	for _, m := range batch {
		fmt.Fprintf(&candidates, "- %s + %s -> %s (reasoning: %s)\n", m.ConceptA, m.ConceptB, m.Canonical, m.Reasoning)
	}

	prompt := fmt.Sprintf(`You are validating proposed merges of course concepts against evidence.

<CANDIDATE MERGES>
%s</CANDIDATE MERGES>

<EVIDENCE>
%s</EVIDENCE>

Instructions:
Flag ONLY the candidates whose evidence does NOT support merging. Candidates
you do not flag are accepted. Return a JSON object:
{
  "weak": [
    {"concept_a": "...", "concept_b": "...", "canonical": "...", "original_reasoning": "...", "weakness_reason": "..."}
  ],
  "notes": "...",
  "total_validated": %d,
  "weak_count": 0
}
`, candidates.String(), renderEvidence(evidence), len(batch))

	response, err := v.LLM.Generate(ctx, prompt)
	if err != nil {
		return MergeResult{
			TotalValidated: len(batch),
			DiscardBatch:   v.failed("merge validation failed", err),
		}
	}

	res, err := common.ParseJSON[MergeResult](response)
	if err != nil {
		return MergeResult{
			TotalValidated: len(batch),
			DiscardBatch:   v.failed("merge validation returned malformed payload", err),
		}
	}

	res.TotalValidated = len(batch)
	res.WeakCount = len(res.Weak)
	return res
}

// Relationships validates a relationship batch against the fetched evidence.
func (v *Validator) Relationships(ctx context.Context, batch []model.CandidateRelationship, evidence map[string][]string) RelationshipResult {
	if len(batch) == 0 {
		return RelationshipResult{}
	}

	var candidates strings.Builder
	for _, r := range batch {
		fmt.Fprintf(&candidates, "- %s -[%s]-> %s (reasoning: %s)\n", r.Source, r.RelationType, r.Target, r.Reasoning)
	}

	prompt := fmt.Sprintf(`You are validating proposed relationships between course concepts against evidence.

<CANDIDATE RELATIONSHIPS>
%s</CANDIDATE RELATIONSHIPS>

<EVIDENCE>
%s</EVIDENCE>

Instructions:
Flag ONLY the candidates whose evidence does NOT support the stated
relationship and direction. Candidates you do not flag are accepted.
Return a JSON object:
{
  "weak": [
    {"source": "...", "target": "...", "relation_type": "...", "original_reasoning": "...", "weakness_reason": "..."}
  ],
  "notes": "...",
  "total_validated": %d,
  "weak_count": 0
}
`, candidates.String(), renderEvidence(evidence), len(batch))

	response, err := v.LLM.Generate(ctx, prompt)
	if err != nil {
		return RelationshipResult{
			TotalValidated: len(batch),
			DiscardBatch:   v.failed("relationship validation failed", err),
		}
	}

	res, err := common.ParseJSON[RelationshipResult](response)
	if err != nil {
		return RelationshipResult{
			TotalValidated: len(batch),
			DiscardBatch:   v.failed("relationship validation returned malformed payload", err),
		}
	}

	res.TotalValidated = len(batch)
	res.WeakCount = len(res.Weak)
	return res
}

// failed logs a validator-side oracle failure and reports whether the batch
// should be discarded under the configured policy.
func (v *Validator) failed(msg string, err error) bool {
	if v.Log != nil {
		v.Log.Warnw(msg, "policy", string(v.Policy), "error", err)
	}
	return v.Policy == model.RejectBatch
}

func renderEvidence(evidence map[string][]string) string {
	if len(evidence) == 0 {
		return "(no evidence available)\n"
	}
	names := make([]string, 0, len(evidence))
	for n := range evidence {
		names = append(names, n)
	}
	// Deterministic prompt ordering.
	sort.Strings(names)

	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteString(":\n")
		for _, d := range evidence[n] {
			sb.WriteString("  - ")
			sb.WriteString(d)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

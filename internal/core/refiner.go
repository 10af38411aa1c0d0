// Package core implements the iterative refinement engine: an oracle
// proposes candidate merges and relationships over a concept bank, a second
// oracle call validates them against evidence, and a control loop
// accumulates validated results until progress stalls or the iteration
// budget runs out.
package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/coalesce/internal/bank"
	"github.com/agenthands/coalesce/internal/core/accum"
	"github.com/agenthands/coalesce/internal/core/cluster"
	"github.com/agenthands/coalesce/internal/core/converge"
	"github.com/agenthands/coalesce/internal/core/model"
	"github.com/agenthands/coalesce/internal/core/propose"
	"github.com/agenthands/coalesce/internal/core/verify"
	"github.com/agenthands/coalesce/internal/llm"
)

// Phase names the controller states.
type Phase string

const (
	PhaseGenerating          Phase = "generating"
	PhaseValidating          Phase = "validating"
	PhaseCheckingConvergence Phase = "checking_convergence"
	PhaseHalted              Phase = "halted"
)

const (
	TrackMerges        = "merges"
	TrackRelationships = "relationships"
)

// TrackProgress is one track's view of the latest completed iteration.
type TrackProgress struct {
	RawBatchSize     int    `json:"raw_batch_size"`
	ValidCount       int    `json:"valid_count"`
	WeakCount        int    `json:"weak_count"`
	NewUniqueCount   int    `json:"new_unique_count"`
	TotalAccumulated int    `json:"total_accumulated"`
	TotalRejected    int    `json:"total_rejected"`
	Converged        bool   `json:"converged"`
	Reason           string `json:"reason,omitempty"`
}

// Progress is emitted once per completed iteration and once on halt.
type Progress struct {
	Iteration     int           `json:"iteration"`
	Phase         Phase         `json:"phase"`
	Merges        TrackProgress `json:"merges"`
	Relationships TrackProgress `json:"relationships"`
}

// Result is the workflow's output, read once after the controller halts.
type Result struct {
	Scope                 string                                 `json:"scope"`
	Iterations            int                                    `json:"iterations"`
	Merges                map[string]model.CandidateMerge        `json:"merges"`
	Relationships         map[string]model.CandidateRelationship `json:"relationships"`
	RejectedMerges        map[string]string                      `json:"rejected_merges"`
	RejectedRelationships map[string]string                      `json:"rejected_relationships"`
	MergeGroups           [][]string                             `json:"merge_groups,omitempty"`
	MergeMetrics          model.ConvergenceMetrics               `json:"merge_metrics"`
	RelationshipMetrics   model.ConvergenceMetrics               `json:"relationship_metrics"`
	History               []model.IterationSnapshot              `json:"history,omitempty"`
}

// Refiner owns one workflow run's mutable state. It is strictly sequential
// and not safe for concurrent use; run one Refiner per scope per workflow.
type Refiner struct {
	Bank      bank.Provider
	Generator *propose.Generator
	Validator *verify.Validator
	Config    model.WorkflowConfig
	Log       *zap.SugaredLogger

	// OnProgress, when set, receives one event per completed iteration and
	// a final event on halt. It is called from the run's goroutine.
	OnProgress func(Progress)
}

// NewRefiner wires the generator and validator onto one oracle client.
// Configuration errors are fatal here; a workflow must refuse to start.
func NewRefiner(b bank.Provider, oracle llm.LLMClient, cfg model.WorkflowConfig, log *zap.SugaredLogger) (*Refiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow config: %w", err)
	}
	return &Refiner{
		Bank:      b,
		Generator: propose.NewGenerator(oracle, log),
		Validator: verify.NewValidator(oracle, cfg.Policy(), log),
		Config:    cfg,
		Log:       log,
	}, nil
}

// track holds one track's persistent and per-iteration state. Accumulated
// and rejected only ever grow; stopped is terminal for the run.
type track[C accum.Keyed] struct {
	name        string
	accumulated map[string]C
	rejected    map[string]string
	monitor     *converge.Monitor
	stopped     bool
	reason      string

	// per-iteration scratch, cleared before each GENERATING entry
	batch []C
	last  TrackProgress
}

func newTrack[C accum.Keyed](name string) *track[C] {
	return &track[C]{
		name:        name,
		accumulated: make(map[string]C),
		rejected:    make(map[string]string),
		monitor:     converge.NewMonitor(),
	}
}

// fold applies one iteration's verdict to the track and returns its audit
// snapshot. Weak verdicts poison the rejection memory before the batch is
// filtered; a discarded batch (fail-closed validation) contributes nothing.
func fold[C accum.Keyed, W accum.Verdict](tr *track[C], iteration int, weak []W, discard bool, notes string, weakKeys []string) model.IterationSnapshot {
	raw := len(tr.batch)
	batch := tr.batch
	if discard {
		batch = nil
	}
	res := accum.Apply(batch, weak, tr.accumulated, tr.rejected)
	tr.monitor.Record(raw, res.ValidCount, len(weak), len(tr.accumulated), res.NewUniqueCount)

	tr.last = TrackProgress{
		RawBatchSize:     raw,
		ValidCount:       res.ValidCount,
		WeakCount:        len(weak),
		NewUniqueCount:   res.NewUniqueCount,
		TotalAccumulated: len(tr.accumulated),
		TotalRejected:    len(tr.rejected),
	}
	return model.IterationSnapshot{
		Iteration:        iteration,
		Track:            tr.name,
		Timestamp:        time.Now().UTC(),
		RawBatchSize:     raw,
		ValidCount:       res.ValidCount,
		WeakCount:        len(weak),
		NewUniqueCount:   res.NewUniqueCount,
		TotalAccumulated: len(tr.accumulated),
		ValidatorNotes:   notes,
		WeakKeys:         weakKeys,
	}
}

// check runs the track's stop rule after an iteration. A stopped track no
// longer generates, validates, or records.
func (tr *track[C]) check(iteration, maxIterations int) {
	if tr.stopped {
		return
	}
	if d := tr.monitor.ShouldStop(iteration, maxIterations); d.Stop {
		tr.stopped = true
		tr.reason = d.Reason
		tr.last.Converged = true
		tr.last.Reason = d.Reason
	}
}

// Run executes the workflow for one scope and blocks until it halts. Oracle
// and evidence failures degrade individual iterations and are never returned
// as errors; the only error paths are the initial concept listing and
// context cancellation between phases.
func (r *Refiner) Run(ctx context.Context, scope string) (*Result, error) {
	concepts, err := r.Bank.ListConcepts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list concepts for scope %q: %w", scope, err)
	}
	if r.Log != nil {
		r.Log.Infow("refinement started", "scope", scope, "concepts", len(concepts), "max_iterations", r.Config.MaxIterations)
	}

	merges := newTrack[model.CandidateMerge](TrackMerges)
	rels := newTrack[model.CandidateRelationship](TrackRelationships)

	var history []model.IterationSnapshot
	iteration := 0
	phase := PhaseGenerating

	for phase != PhaseHalted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch phase {
		case PhaseGenerating:
			if !merges.stopped {
				merges.batch = r.Generator.Merges(ctx, concepts, merges.rejected)
			}
			if !rels.stopped {
				rels.batch = r.Generator.Relationships(ctx, concepts, rels.rejected)
			}
			phase = PhaseValidating

		case PhaseValidating:
			evidence := r.fetchEvidence(ctx, scope, merges.batch, rels.batch)

			if !merges.stopped {
				var verdict verify.MergeResult
				if len(merges.batch) > 0 {
					verdict = r.Validator.Merges(ctx, merges.batch, evidenceFor(evidence, mergeNames(merges.batch)))
				}
				snap := fold(merges, iteration+1, verdict.Weak, verdict.DiscardBatch, verdict.Notes, verdict.WeakKeys())
				if r.Config.EnableHistory {
					history = append(history, snap)
				}
			}
			if !rels.stopped {
				var verdict verify.RelationshipResult
				if len(rels.batch) > 0 {
					verdict = r.Validator.Relationships(ctx, rels.batch, evidenceFor(evidence, relationshipNames(rels.batch)))
				}
				snap := fold(rels, iteration+1, verdict.Weak, verdict.DiscardBatch, verdict.Notes, verdict.WeakKeys())
				if r.Config.EnableHistory {
					history = append(history, snap)
				}
			}

			iteration++
			r.emit(iteration, PhaseValidating, merges, rels)
			if r.Config.Verbose && r.Log != nil {
				r.Log.Debugw("iteration complete",
					"iteration", iteration,
					"merge_new_unique", merges.last.NewUniqueCount,
					"merge_total", merges.last.TotalAccumulated,
					"relationship_new_unique", rels.last.NewUniqueCount,
					"relationship_total", rels.last.TotalAccumulated)
			}
			phase = PhaseCheckingConvergence

		case PhaseCheckingConvergence:
			merges.check(iteration, r.Config.MaxIterations)
			rels.check(iteration, r.Config.MaxIterations)
			if merges.stopped && rels.stopped {
				phase = PhaseHalted
				break
			}
			merges.batch = nil
			rels.batch = nil
			phase = PhaseGenerating
		}
	}

	r.emit(iteration, PhaseHalted, merges, rels)
	if r.Log != nil {
		r.Log.Infow("refinement halted",
			"scope", scope,
			"iterations", iteration,
			"merges", len(merges.accumulated),
			"relationships", len(rels.accumulated),
			"merge_reason", merges.reason,
			"relationship_reason", rels.reason)
	}

	return &Result{
		Scope:                 scope,
		Iterations:            iteration,
		Merges:                merges.accumulated,
		Relationships:         rels.accumulated,
		RejectedMerges:        merges.rejected,
		RejectedRelationships: rels.rejected,
		MergeGroups:           cluster.Groups(merges.accumulated),
		MergeMetrics:          merges.monitor.Metrics(),
		RelationshipMetrics:   rels.monitor.Metrics(),
		History:               history,
	}, nil
}

// fetchEvidence pulls definitions for exactly the concept names referenced
// by this iteration's batches. Lookup failure degrades to empty evidence.
func (r *Refiner) fetchEvidence(ctx context.Context, scope string, mergeBatch []model.CandidateMerge, relBatch []model.CandidateRelationship) map[string][]string {
	names := append(mergeNames(mergeBatch), relationshipNames(relBatch)...)
	if len(names) == 0 {
		return map[string][]string{}
	}
	evidence, err := r.Bank.GetDefinitions(ctx, dedupeNames(names), scope)
	if err != nil {
		if r.Log != nil {
			r.Log.Warnw("evidence lookup failed, validating without evidence", "scope", scope, "error", err)
		}
		return map[string][]string{}
	}
	return evidence
}

func (r *Refiner) emit(iteration int, phase Phase, merges *track[model.CandidateMerge], rels *track[model.CandidateRelationship]) {
	if r.OnProgress == nil {
		return
	}
	r.OnProgress(Progress{
		Iteration:     iteration,
		Phase:         phase,
		Merges:        merges.last,
		Relationships: rels.last,
	})
}

func mergeNames(batch []model.CandidateMerge) []string {
	names := make([]string, 0, len(batch)*2)
	for _, m := range batch {
		names = append(names, m.ConceptA, m.ConceptB)
	}
	return names
}

func relationshipNames(batch []model.CandidateRelationship) []string {
	names := make([]string, 0, len(batch)*2)
	for _, r := range batch {
		names = append(names, r.Source, r.Target)
	}
	return names
}

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// evidenceFor restricts the shared evidence map to one track's names, so
// each validator call sees only what its batch references.
func evidenceFor(evidence map[string][]string, names []string) map[string][]string {
	out := make(map[string][]string, len(names))
	for _, n := range names {
		if defs, ok := evidence[n]; ok {
			out[n] = defs
		}
	}
	return out
}

package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/coalesce/internal/core/model"
)

func testConfig(maxIterations int) model.WorkflowConfig {
	return model.WorkflowConfig{
		MaxIterations:    maxIterations,
		EnableHistory:    true,
		OnValidatorError: model.AcceptAll,
	}
}

func etlBank() *mockBank {
	return &mockBank{
		Concepts: []model.Concept{
			{Name: "etl (extract, transform, load)"},
			{Name: "etl"},
		},
		Definitions: map[string][]string{
			"etl (extract, transform, load)": {"the process of extracting, transforming and loading data"},
			"etl":                            {"the process of extracting, transforming and loading data"},
		},
	}
}

const etlMergeResponse = `{
	"merges": [
		{"concept_a": "etl (extract, transform, load)", "concept_b": "etl", "canonical": "etl", "variants": [], "reasoning": "acronym and expansion"}
	]
}`

func TestNewRefinerRejectsInvalidConfig(t *testing.T) {
	_, err := NewRefiner(etlBank(), &scriptedOracle{}, model.WorkflowConfig{MaxIterations: 0}, nil)
	assert.Error(t, err)

	_, err = NewRefiner(etlBank(), &scriptedOracle{}, model.WorkflowConfig{MaxIterations: 2, OnValidatorError: "explode"}, nil)
	assert.Error(t, err)
}

func TestRunAcceptsValidatedMerge(t *testing.T) {
	oracle := &scriptedOracle{
		MergeGen: []string{etlMergeResponse},
	}
	r, err := NewRefiner(etlBank(), oracle, testConfig(5), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	key := model.MergeKey("etl (extract, transform, load)", "etl")
	require.Len(t, res.Merges, 1)
	assert.Contains(t, res.Merges, key)
	assert.Equal(t, "etl", res.Merges[key].Canonical)
	assert.Equal(t, 1, res.MergeMetrics.NewUniqueCounts[0])
	assert.Empty(t, res.RejectedMerges)

	// A single merge pair forms one review group of two names.
	require.Len(t, res.MergeGroups, 1)
	assert.Len(t, res.MergeGroups[0], 2)
}

func TestRunWeakVerdictIsPermanentlyRejected(t *testing.T) {
	// The generator proposes the identical pair in two consecutive
	// iterations; the validator rejects it once.
	oracle := &scriptedOracle{
		MergeGen: []string{etlMergeResponse, etlMergeResponse},
		MergeVal: []string{`{
			"weak": [
				{"concept_a": "etl (extract, transform, load)", "concept_b": "etl", "weakness_reason": "different scope: acronym not confirmed in list"}
			],
			"notes": "", "total_validated": 1, "weak_count": 1
		}`},
	}
	r, err := NewRefiner(etlBank(), oracle, testConfig(10), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	key := model.MergeKey("etl", "etl (extract, transform, load)")
	assert.Empty(t, res.Merges)
	assert.Contains(t, res.RejectedMerges, key)
	assert.Equal(t, "different scope: acronym not confirmed in list", res.RejectedMerges[key])

	// Iteration 1 rejects the pair, iteration 2 filters the re-proposal
	// via the rejection memory: zero new uniques both times.
	require.GreaterOrEqual(t, len(res.MergeMetrics.NewUniqueCounts), 2)
	assert.Equal(t, 0, res.MergeMetrics.NewUniqueCounts[0])
	assert.Equal(t, 0, res.MergeMetrics.NewUniqueCounts[1])
}

func TestRunHaltsAtMaxIterationsWithNovelBatches(t *testing.T) {
	// Every iteration yields five brand-new merges; only the budget stops it.
	var gens []string
	for i := 0; i < 5; i++ {
		batch := `{"merges": [`
		for j := 0; j < 5; j++ {
			if j > 0 {
				batch += ","
			}
			batch += fmt.Sprintf(`{"concept_a": "a%d-%d", "concept_b": "b%d-%d", "canonical": "a%d-%d", "reasoning": "novel"}`, i, j, i, j, i, j)
		}
		batch += `]}`
		gens = append(gens, batch)
	}
	oracle := &scriptedOracle{MergeGen: gens}

	r, err := NewRefiner(etlBank(), oracle, testConfig(3), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, res.Merges, 15)
	assert.True(t, res.MergeMetrics.Converged)
	assert.Equal(t, "maximum iterations reached", res.MergeMetrics.Reason)
	assert.Equal(t, []int{5, 5, 5}, res.MergeMetrics.NewUniqueCounts)
}

func TestRunHaltsOnStagnationBeforeMaxIterations(t *testing.T) {
	// Same pair every iteration: one new unique, then zero forever.
	oracle := &scriptedOracle{
		MergeGen: []string{etlMergeResponse, etlMergeResponse, etlMergeResponse, etlMergeResponse},
	}
	r, err := NewRefiner(etlBank(), oracle, testConfig(50), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	assert.Less(t, res.Iterations, 50)
	assert.True(t, res.MergeMetrics.Converged)
	assert.Contains(t, res.MergeMetrics.Reason, "convergence")
}

func TestRunFailOpenValidatorAcceptsWholeBatch(t *testing.T) {
	oracle := &scriptedOracle{
		MergeGen:      []string{etlMergeResponse},
		ValidationErr: errors.New("oracle down"),
	}
	r, err := NewRefiner(etlBank(), oracle, testConfig(5), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	// valid_count == len(raw_batch), weak_count == 0 after iteration one.
	assert.Equal(t, res.MergeMetrics.RawBatchSizes[0], res.MergeMetrics.ValidCounts[0])
	assert.Equal(t, 0, res.MergeMetrics.WeakCounts[0])
	assert.Len(t, res.Merges, 1)
}

func TestRunFailClosedDiscardsUnvalidatedBatch(t *testing.T) {
	oracle := &scriptedOracle{
		MergeGen:      []string{etlMergeResponse, etlMergeResponse},
		ValidationErr: errors.New("oracle down"),
	}
	cfg := testConfig(5)
	cfg.OnValidatorError = model.RejectBatch
	r, err := NewRefiner(etlBank(), oracle, cfg, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	assert.Empty(t, res.Merges)
	// Fail-closed must not poison the rejection memory.
	assert.Empty(t, res.RejectedMerges)
	assert.Equal(t, 0, res.MergeMetrics.ValidCounts[0])
}

func TestRunTracksConvergeIndependently(t *testing.T) {
	// The merge track stalls immediately; the relationship track keeps
	// finding novel edges for four iterations.
	var relGens []string
	for i := 0; i < 4; i++ {
		batch := `{"relationships": [`
		for j := 0; j < 4; j++ {
			if j > 0 {
				batch += ","
			}
			batch += fmt.Sprintf(`{"source": "s%d-%d", "target": "t%d-%d", "relation_type": "USED_FOR", "reasoning": "novel"}`, i, j, i, j)
		}
		batch += `]}`
		relGens = append(relGens, batch)
	}
	oracle := &scriptedOracle{RelGen: relGens}

	r, err := NewRefiner(etlBank(), oracle, testConfig(20), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	// Merge track stopped after two stalled iterations and recorded
	// nothing afterwards; the relationship track kept going.
	assert.Equal(t, 2, res.MergeMetrics.Iterations())
	assert.Greater(t, res.RelationshipMetrics.Iterations(), res.MergeMetrics.Iterations())
	assert.Len(t, res.Relationships, 16)

	// A stopped track must not generate again.
	assert.Equal(t, 2, oracle.MergeGenCalls)
	assert.Greater(t, oracle.RelGenCalls, 2)

	assert.True(t, res.MergeMetrics.Converged)
	assert.True(t, res.RelationshipMetrics.Converged)
}

func TestRunEmptyConceptSetNeverCallsOracle(t *testing.T) {
	oracle := &scriptedOracle{}
	b := &mockBank{}
	r, err := NewRefiner(b, oracle, testConfig(10), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "empty-scope")
	require.NoError(t, err)

	assert.Empty(t, res.Merges)
	assert.Empty(t, res.Relationships)
	assert.Zero(t, oracle.MergeGenCalls+oracle.RelGenCalls+oracle.MergeValCalls+oracle.RelValCalls)
	// Empty iterations still count toward stagnation, so the run halts.
	assert.True(t, res.MergeMetrics.Converged)
}

func TestRunEmptyBatchSkipsValidationOracleCall(t *testing.T) {
	oracle := &scriptedOracle{
		MergeGen: []string{`{"merges": []}`},
	}
	r, err := NewRefiner(etlBank(), oracle, testConfig(5), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	assert.Greater(t, oracle.MergeGenCalls, 0)
	assert.Zero(t, oracle.MergeValCalls)
	assert.Zero(t, oracle.RelValCalls)
}

func TestRunFetchesEvidenceOnlyForReferencedConcepts(t *testing.T) {
	b := etlBank()
	b.Concepts = append(b.Concepts, model.Concept{Name: "unrelated concept"})
	oracle := &scriptedOracle{MergeGen: []string{etlMergeResponse}}

	r, err := NewRefiner(b, oracle, testConfig(5), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	require.NotEmpty(t, b.RequestedNames)
	for _, names := range b.RequestedNames {
		assert.NotContains(t, names, "unrelated concept")
	}
}

func TestRunEvidenceLookupFailureDegrades(t *testing.T) {
	b := etlBank()
	b.DefsErr = errors.New("bank unavailable")
	oracle := &scriptedOracle{MergeGen: []string{etlMergeResponse}}

	r, err := NewRefiner(b, oracle, testConfig(5), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Len(t, res.Merges, 1)
}

func TestRunGenerationFailureDegradesIterationToNoOp(t *testing.T) {
	oracle := &scriptedOracle{GenerationErr: errors.New("oracle down")}
	r, err := NewRefiner(etlBank(), oracle, testConfig(10), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	assert.Empty(t, res.Merges)
	assert.True(t, res.MergeMetrics.Converged)
}

func TestRunHistoryTracking(t *testing.T) {
	oracle := &scriptedOracle{MergeGen: []string{etlMergeResponse}}
	r, err := NewRefiner(etlBank(), oracle, testConfig(5), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	// One snapshot per track per iteration.
	require.NotEmpty(t, res.History)
	assert.Equal(t, 2*res.Iterations, len(res.History))
	assert.Equal(t, 1, res.History[0].Iteration)
	assert.Equal(t, TrackMerges, res.History[0].Track)

	cfg := testConfig(5)
	cfg.EnableHistory = false
	r2, err := NewRefiner(etlBank(), &scriptedOracle{MergeGen: []string{etlMergeResponse}}, cfg, nil)
	require.NoError(t, err)
	res2, err := r2.Run(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Empty(t, res2.History)
}

func TestRunMonotonicAccumulation(t *testing.T) {
	oracle := &scriptedOracle{
		MergeGen: []string{
			`{"merges": [{"concept_a": "a", "concept_b": "b", "canonical": "a", "reasoning": "x"}, {"concept_a": "c", "concept_b": "d", "canonical": "c", "reasoning": "x"}, {"concept_a": "e", "concept_b": "f", "canonical": "e", "reasoning": "x"}]}`,
			`{"merges": [{"concept_a": "a", "concept_b": "b", "canonical": "a", "reasoning": "x"}]}`,
			`{"merges": []}`,
		},
	}
	r, err := NewRefiner(etlBank(), oracle, testConfig(10), nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	prev := 0
	for _, total := range res.MergeMetrics.TotalAccumulated {
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}
}

func TestRunProgressEvents(t *testing.T) {
	oracle := &scriptedOracle{MergeGen: []string{etlMergeResponse}}
	r, err := NewRefiner(etlBank(), oracle, testConfig(5), nil)
	require.NoError(t, err)

	var events []Progress
	r.OnProgress = func(p Progress) { events = append(events, p) }

	res, err := r.Run(context.Background(), "course-1")
	require.NoError(t, err)

	// One event per iteration plus the terminal halt event.
	require.Len(t, events, res.Iterations+1)
	assert.Equal(t, 1, events[0].Iteration)
	assert.Equal(t, PhaseValidating, events[0].Phase)
	assert.Equal(t, 1, events[0].Merges.NewUniqueCount)

	last := events[len(events)-1]
	assert.Equal(t, PhaseHalted, last.Phase)
	assert.True(t, last.Merges.Converged)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewRefiner(etlBank(), &scriptedOracle{}, testConfig(5), nil)
	require.NoError(t, err)

	_, err = r.Run(ctx, "course-1")
	assert.Error(t, err)
}

func TestRunListConceptsFailureIsFatal(t *testing.T) {
	b := &mockBank{ListErr: errors.New("graph down")}
	r, err := NewRefiner(b, &scriptedOracle{}, testConfig(5), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "course-1")
	assert.Error(t, err)
}

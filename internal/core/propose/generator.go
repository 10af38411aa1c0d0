// Package propose implements the candidate generator: one oracle call per
// track per iteration, proposing merge or relationship candidates for the
// current concept set. Generation failures degrade to an empty batch; they
// never abort the workflow.
package propose

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

type Generator struct {
	LLM llm.LLMClient
	Log *zap.SugaredLogger
}

func NewGenerator(llmClient llm.LLMClient, log *zap.SugaredLogger) *Generator {
	return &Generator{LLM: llmClient, Log: log}
}

type mergeBatch struct {
	Merges []model.CandidateMerge `json:"merges"`
}

type relationshipBatch struct {
	Relationships []model.CandidateRelationship `json:"relationships"`
}

// Merges asks the oracle for merge candidates over the concept set,
// steering it away from previously rejected pairs. An empty concept set
// yields an empty batch without an oracle call.
func (g *Generator) Merges(ctx context.Context, concepts []model.Concept, rejected map[string]string) []model.CandidateMerge {
	if len(concepts) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(`You are refining a bank of course concepts.

<CONCEPTS>
%s</CONCEPTS>

<PREVIOUSLY REJECTED>
%s</PREVIOUSLY REJECTED>

Instructions:
Identify pairs of concepts above that are near-duplicates and should be merged.
Never re-propose a rejected pair. Only use concept names from the list.
Return a JSON object with key "merges", a list of objects with "concept_a",
"concept_b", "canonical" (the name the pair should collapse to), "variants"
(other spellings, may be empty), and "reasoning".

Example JSON:
{
  "merges": [
    {"concept_a": "etl", "concept_b": "etl (extract, transform, load)", "canonical": "etl", "variants": [], "reasoning": "acronym expansion of the same process"}
  ]
}
`, renderConcepts(concepts), renderRejections(rejected))

	response, err := g.LLM.Generate(ctx, prompt)
	if err != nil {
		g.warn("merge generation failed", err)
		return nil
	}

	batch, err := common.ParseJSON[mergeBatch](response)
	if err != nil {
		g.warn("merge generation returned malformed payload", err)
		return nil
	}

	out := batch.Merges[:0]
	for _, m := range batch.Merges {
		if strings.TrimSpace(m.ConceptA) == "" || strings.TrimSpace(m.ConceptB) == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(m.ConceptA), strings.TrimSpace(m.ConceptB)) {
			// Self-merge, oracle noise.
			continue
		}
		out = append(out, m)
	}
	return out
}

// Relationships asks the oracle for directed, typed relationship candidates
// between distinct concepts.
func (g *Generator) Relationships(ctx context.Context, concepts []model.Concept, rejected map[string]string) []model.CandidateRelationship {
	if len(concepts) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(`You are refining a bank of course concepts.

<CONCEPTS>
%s</CONCEPTS>

<PREVIOUSLY REJECTED>
%s</PREVIOUSLY REJECTED>

Instructions:
Identify directed semantic relationships between DISTINCT concepts above,
such as PREREQUISITE_OF, PART_OF, USED_FOR, CONTRASTS_WITH.
Never re-propose a rejected relationship. Only use concept names from the list.
Return a JSON object with key "relationships", a list of objects with
"source", "target", "relation_type", and "reasoning".

Example JSON:
{
  "relationships": [
    {"source": "normalization", "target": "database design", "relation_type": "USED_FOR", "reasoning": "normalization is a technique applied during schema design"}
  ]
}
`, renderConcepts(concepts), renderRejections(rejected))

	response, err := g.LLM.Generate(ctx, prompt)
	if err != nil {
		g.warn("relationship generation failed", err)
		return nil
	}

	batch, err := common.ParseJSON[relationshipBatch](response)
	if err != nil {
		g.warn("relationship generation returned malformed payload", err)
		return nil
	}

	out := batch.Relationships[:0]
	for _, r := range batch.Relationships {
		if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" || strings.TrimSpace(r.RelationType) == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(r.Source), strings.TrimSpace(r.Target)) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (g *Generator) warn(msg string, err error) {
	if g.Log != nil {
		g.Log.Warnw(msg, "error", err)
	}
}

func renderConcepts(concepts []model.Concept) string {
	var sb strings.Builder
	for _, c := range concepts {
		sb.WriteString("- ")
		sb.WriteString(c.Name)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderRejections turns the rejection memory into avoid-instructions. Keys
// are sorted so prompts are deterministic for a given memory state.
func renderRejections(rejected map[string]string) string {
	if len(rejected) == 0 {
		return "(none)\n"
	}
	keys := make([]string, 0, len(rejected))
	for k := range rejected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		parts := strings.Split(k, model.KeySeparator)
		sb.WriteString("- avoid proposing ")
		sb.WriteString(strings.Join(parts, " + "))
		sb.WriteString(" again: ")
		sb.WriteString(rejected[k])
		sb.WriteString("\n")
	}
	return sb.String()
}

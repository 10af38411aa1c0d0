package core

import (
	"context"
	"strings"
	"sync"

	"github.com/agenthands/coalesce/internal/core/model"
)

// scriptedOracle routes prompts to per-call-site response queues by
// inspecting the prompt's structural markers. When a queue runs out it keeps
// returning an empty batch / empty verdict.
type scriptedOracle struct {
	mu sync.Mutex

	MergeGen []string
	RelGen   []string
	MergeVal []string
	RelVal   []string

	// ValidationErr fails every validation call (generation still works).
	ValidationErr error
	// GenerationErr fails every generation call.
	GenerationErr error

	MergeGenCalls int
	RelGenCalls   int
	MergeValCalls int
	RelValCalls   int
}

func (o *scriptedOracle) Generate(ctx context.Context, prompt string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case strings.Contains(prompt, "<CANDIDATE MERGES>"):
		o.MergeValCalls++
		if o.ValidationErr != nil {
			return "", o.ValidationErr
		}
		return pop(&o.MergeVal, `{"weak": [], "notes": "", "total_validated": 0, "weak_count": 0}`), nil

	case strings.Contains(prompt, "<CANDIDATE RELATIONSHIPS>"):
		o.RelValCalls++
		if o.ValidationErr != nil {
			return "", o.ValidationErr
		}
		return pop(&o.RelVal, `{"weak": [], "notes": "", "total_validated": 0, "weak_count": 0}`), nil

	case strings.Contains(prompt, `"relationships"`):
		o.RelGenCalls++
		if o.GenerationErr != nil {
			return "", o.GenerationErr
		}
		return pop(&o.RelGen, `{"relationships": []}`), nil

	default:
		o.MergeGenCalls++
		if o.GenerationErr != nil {
			return "", o.GenerationErr
		}
		return pop(&o.MergeGen, `{"merges": []}`), nil
	}
}

func pop(queue *[]string, fallback string) string {
	if len(*queue) == 0 {
		return fallback
	}
	head := (*queue)[0]
	*queue = (*queue)[1:]
	return head
}

type mockBank struct {
	Concepts    []model.Concept
	Definitions map[string][]string

	ListErr error
	DefsErr error

	ListCalls      int
	DefsCalls      int
	RequestedNames [][]string
}

func (b *mockBank) ListConcepts(ctx context.Context, scope string) ([]model.Concept, error) {
	b.ListCalls++
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	return b.Concepts, nil
}

func (b *mockBank) GetDefinitions(ctx context.Context, names []string, scope string) (map[string][]string, error) {
	b.DefsCalls++
	b.RequestedNames = append(b.RequestedNames, names)
	if b.DefsErr != nil {
		return nil, b.DefsErr
	}
	out := make(map[string][]string, len(names))
	for _, n := range names {
		if defs, ok := b.Definitions[n]; ok {
			out[n] = defs
		}
	}
	return out, nil
}

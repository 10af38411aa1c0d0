// Package bank provides the concept bank: the external source of truth for
// concept names and their textual evidence. The refinement engine reads from
// it and never writes to it; ingestion happens through the HTTP surface.
package bank

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/coalesce/internal/core/model"
	"github.com/agenthands/coalesce/internal/driver"
	"github.com/agenthands/coalesce/internal/llm"
)

// Provider supplies the concept set for a scope and, on demand, per-concept
// textual evidence. Definitions are keyed by the name spelling the caller
// asked with; name matching against the store is case-insensitive.
type Provider interface {
	ListConcepts(ctx context.Context, scope string) ([]model.Concept, error)
	GetDefinitions(ctx context.Context, names []string, scope string) (map[string][]string, error)
}

// GraphBank is the graph-store-backed Provider.
type GraphBank struct {
	Driver   driver.GraphDriver
	Embedder llm.EmbedderClient
	Log      *zap.SugaredLogger
}

func NewGraphBank(d driver.GraphDriver, embedder llm.EmbedderClient, log *zap.SugaredLogger) *GraphBank {
	return &GraphBank{Driver: d, Embedder: embedder, Log: log}
}

func (b *GraphBank) ListConcepts(ctx context.Context, scope string) ([]model.Concept, error) {
	res, err := b.Driver.ExecuteQuery(ctx, driver.ListConceptsQuery, map[string]interface{}{
		"scope": scope,
	})
	if err != nil {
		return nil, err
	}

	var concepts []model.Concept
	for _, rec := range res.Records {
		name, _ := rec.Get("name")
		s, ok := name.(string)
		if !ok || s == "" {
			continue
		}
		concepts = append(concepts, model.Concept{Name: s})
	}
	return concepts, nil
}

func (b *GraphBank) GetDefinitions(ctx context.Context, names []string, scope string) (map[string][]string, error) {
	if len(names) == 0 {
		return map[string][]string{}, nil
	}

	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, nameKey(n))
	}

	res, err := b.Driver.ExecuteQuery(ctx, driver.GetDefinitionsQuery, map[string]interface{}{
		"scope":     scope,
		"name_keys": keys,
	})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]string, len(res.Records))
	for _, rec := range res.Records {
		nameVal, _ := rec.Get("name")
		name, ok := nameVal.(string)
		if !ok {
			continue
		}
		defsVal, _ := rec.Get("definitions")
		raw, ok := defsVal.([]interface{})
		if !ok {
			continue
		}
		for _, d := range raw {
			if s, ok := d.(string); ok {
				byKey[nameKey(name)] = append(byKey[nameKey(name)], s)
			}
		}
	}

	// Key the result by the caller's spelling, not the stored one, so lookups
	// made with a candidate's casing still find the evidence.
	defs := make(map[string][]string, len(names))
	for _, n := range names {
		if d, ok := byKey[nameKey(n)]; ok {
			defs[n] = d
		}
	}
	return defs, nil
}

// SaveConcept upserts a concept node, embedding its name when an embedder is
// wired. Upserts key on the lowercased name so re-ingesting a concept with
// different casing updates the existing node.
func (b *GraphBank) SaveConcept(ctx context.Context, scope, name string, definitions []string) (*model.ConceptNode, error) {
	node := &model.ConceptNode{
		UUID:        uuid.New().String(),
		Name:        name,
		Scope:       scope,
		CreatedAt:   time.Now().UTC(),
		Definitions: definitions,
	}

	if b.Embedder != nil {
		vec, err := b.Embedder.Embed(ctx, name)
		if err == nil {
			node.NameEmbedding = vec
		} else if b.Log != nil {
			b.Log.Warnw("failed to embed concept name", "name", name, "error", err)
		}
	}

	params := map[string]interface{}{
		"uuid":           node.UUID,
		"name":           node.Name,
		"name_key":       nameKey(node.Name),
		"scope":          node.Scope,
		"created_at":     node.CreatedAt.Format(time.RFC3339),
		"definitions":    node.Definitions,
		"name_embedding": node.NameEmbedding,
	}
	if _, err := b.Driver.ExecuteQuery(ctx, driver.SaveConceptQuery, params); err != nil {
		return nil, err
	}
	return node, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

package llm

import (
	"context"
)

// LLMClient is the text-generation oracle. Both the candidate generator and
// the candidate validator speak to it through this single method.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedderClient produces embeddings for concept names at ingestion time.
// Providers without embedding support return a nil EmbedderClient from the
// factory; callers must check before use.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

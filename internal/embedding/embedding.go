package embedding

import "context"

// Embedder is the interface every embedding client implements.
type Embedder interface {
	// Embed generates the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding vector per input text, in a single
	// remote request, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the fixed dimension of the vectors the model emits.
	Dimension() int
}

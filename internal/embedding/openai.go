package embedding

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"studybot/internal/schema"
)

// DefaultModel is the embedding model every index in this system was built
// against. Its output dimension is fixed at 1536.
const DefaultModel = "text-embedding-3-small"

const modelDimension = 1536

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedding client for the given model. An empty
// model name selects DefaultModel.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultModel
	}
	config := openai.DefaultConfig(apiKey)
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Dimension reports the fixed output dimension of the configured model.
func (m *OpenAIEmbedder) Dimension() int {
	return modelDimension
}

// Embed generates the embedding vector for a single text.
func (m *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for a batch of texts in one request. It
// does not retry internally; retrying is the caller's responsibility.
func (m *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(m.model),
	}

	resp, err := m.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, &schema.TransportError{Op: "create embeddings", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}

	return embeddings, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

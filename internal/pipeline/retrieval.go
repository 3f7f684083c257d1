package pipeline

import (
	"context"
	"fmt"

	"studybot/internal/embedding"
	"studybot/internal/schema"
	"studybot/internal/vectorstore"
	"studybot/pkg/logger"
)

// Retrieval defaults: how many matches to request and the character budget
// the assembled prompt must stay under.
const (
	DefaultTopK       = 5
	DefaultCharBudget = 3750
)

// RetrievalPipeline embeds a query, runs a similarity search scoped to one
// namespace and assembles a bounded-length context window from the ranked
// matches.
type RetrievalPipeline struct {
	embedder   embedding.Embedder
	store      vectorstore.Store
	log        *logger.Logger
	TopK       int
	CharBudget int
}

// NewRetrievalPipeline creates a RetrievalPipeline with the default top-k
// and character budget.
func NewRetrievalPipeline(embedder embedding.Embedder, store vectorstore.Store, log *logger.Logger) *RetrievalPipeline {
	return &RetrievalPipeline{
		embedder:   embedder,
		store:      store,
		log:        log,
		TopK:       DefaultTopK,
		CharBudget: DefaultCharBudget,
	}
}

// Retrieve returns the context window for the query within (index,
// namespace). Match texts are appended in rank order; an append stops the
// walk as soon as prefix, accumulated contexts and suffix would meet or
// exceed the character budget. Zero matches yield an empty context, not an
// error; absent index or namespace surfaces as schema.ErrIndexNotFound or
// schema.ErrNamespaceNotFound.
func (p *RetrievalPipeline) Retrieve(ctx context.Context, query, index, namespace string) (schema.RetrievalContext, error) {
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		p.log.WithError(err).Error("Failed to embed query")
		return schema.RetrievalContext{}, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := p.store.Search(ctx, index, namespace, vector, p.TopK)
	if err != nil {
		return schema.RetrievalContext{}, err
	}
	if len(matches) == 0 {
		p.log.Info(fmt.Sprintf("No matches in %q/%q for query", index, namespace))
		return schema.RetrievalContext{}, nil
	}

	// Mirror the prompt assembly: the running length counts the instruction
	// prefix, the accumulated separated contexts and the query suffix. The
	// separator ahead of the candidate is not part of the check.
	running := len(promptStart)
	suffix := len(promptEnd(query))
	var texts []string
	for _, match := range matches {
		if running+len(match.Text)+suffix >= p.CharBudget {
			break
		}
		running += len(contextSeparator) + len(match.Text)
		texts = append(texts, match.Text)
	}

	p.log.Info(fmt.Sprintf("Assembled context from %d of %d matches in %q/%q", len(texts), len(matches), index, namespace))
	return schema.RetrievalContext{Texts: texts}, nil
}

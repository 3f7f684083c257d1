package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"studybot/internal/chunker"
	"studybot/internal/embedding"
	"studybot/internal/schema"
	"studybot/internal/vectorstore"
	"studybot/pkg/logger"
)

// IndexingPipeline orchestrates one ingestion: chunk the text, embed every
// chunk in a single batch, and write all records into one namespace.
//
// The pipeline does not deduplicate by content. Re-upserting the same text
// into the same namespace creates additional records under fresh ids, so
// callers guard duplicate ingestion by checking NamespaceExists first.
// Writes are at-least-once and non-atomic: a failure aborts the call but
// records already flushed to the index stay.
type IndexingPipeline struct {
	splitter *chunker.Splitter
	embedder embedding.Embedder
	store    vectorstore.Store
	log      *logger.Logger
}

// NewIndexingPipeline creates an IndexingPipeline.
func NewIndexingPipeline(
	splitter *chunker.Splitter,
	embedder embedding.Embedder,
	store vectorstore.Store,
	log *logger.Logger,
) *IndexingPipeline {
	return &IndexingPipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		log:      log,
	}
}

// Upsert chunks and embeds text and writes the records into the described
// index under the given namespace, creating index and namespace if absent.
func (p *IndexingPipeline) Upsert(ctx context.Context, desc schema.IndexDescriptor, namespace, text string) error {
	if dim := p.embedder.Dimension(); dim != desc.Dimension {
		return fmt.Errorf("embedder produces %d-dimension vectors, index %q wants %d", dim, desc.Name, desc.Dimension)
	}
	if err := p.store.EnsureIndex(ctx, desc); err != nil {
		p.log.WithError(err).Error(fmt.Sprintf("Failed to ensure index %q", desc.Name))
		return err
	}
	if err := p.store.EnsureNamespace(ctx, desc.Name, namespace); err != nil {
		p.log.WithError(err).Error(fmt.Sprintf("Failed to ensure namespace %q in %q", namespace, desc.Name))
		return err
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		p.log.Info(fmt.Sprintf("Nothing to ingest into %q/%q: empty text", desc.Name, namespace))
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.log.WithError(err).Error("Failed to embed chunks")
		return fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}

	records := make([]schema.IndexedRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = schema.IndexedRecord{
			ID:     uuid.New().String(),
			Vector: vectors[i],
			Text:   chunk.Text,
		}
	}

	if err := p.store.Insert(ctx, desc.Name, namespace, records); err != nil {
		p.log.WithError(err).Error(fmt.Sprintf("Failed to insert records into %q/%q", desc.Name, namespace))
		return err
	}

	p.log.Info(fmt.Sprintf("Ingested %d chunks into %q/%q", len(records), desc.Name, namespace))
	return nil
}

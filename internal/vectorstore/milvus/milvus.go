// Package milvus backs the vector index manager with a Milvus deployment.
// Each index maps to a collection and each namespace to a partition within
// it, so one collection isolates many topics, documents and answer sets.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"studybot/internal/schema"
	"studybot/internal/vectorstore"
	"studybot/pkg/logger"
)

// Collection schema fields. Every index carries the same three columns.
const (
	FieldID        = "id"
	FieldChunk     = "chunk"
	FieldEmbedding = "embedding"
)

const (
	idMaxLength    = 64
	chunkMaxLength = 65535
	ivfNlist       = 128
	searchNprobe   = 10
)

// Store implements vectorstore.Store against a Milvus deployment.
type Store struct {
	client client.Client
	log    *logger.Logger
}

// Dial connects to Milvus at the given address and returns a Store bound to
// the connection. The caller owns the Store's lifetime and must Close it.
func Dial(ctx context.Context, address string, log *logger.Logger) (*Store, error) {
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus at %s: %w", address, err)
	}
	log.Info(fmt.Sprintf("Connected to Milvus at %s", address))
	return &Store{client: c, log: log}, nil
}

// NewStore wraps an already-connected Milvus client.
func NewStore(c client.Client, log *logger.Logger) *Store {
	return &Store{client: c, log: log}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// HealthCheck verifies the connection is usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

func metricType(m schema.Metric) (entity.MetricType, error) {
	switch m {
	case schema.MetricCosine:
		return entity.COSINE, nil
	case schema.MetricDotProduct:
		return entity.IP, nil
	}
	return "", fmt.Errorf("unsupported metric: %s", m)
}

// EnsureIndex creates the collection and its vector index if absent. When the
// collection already exists, the stored dimension and metric are checked
// against the descriptor; a mismatch fails here instead of at write time.
func (s *Store) EnsureIndex(ctx context.Context, desc schema.IndexDescriptor) error {
	metric, err := metricType(desc.Metric)
	if err != nil {
		return err
	}

	exists, err := s.client.HasCollection(ctx, desc.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", desc.Name, err)
	}

	if exists {
		return s.validateExisting(ctx, desc, metric)
	}

	collSchema := entity.NewSchema().
		WithName(desc.Name).
		WithDescription(fmt.Sprintf("study-bot vector index (region %s)", desc.CloudRegion)).
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(idMaxLength).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldChunk).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(chunkMaxLength)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(desc.Dimension)))

	if err := s.client.CreateCollection(ctx, collSchema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", desc.Name, err)
	}

	idx, err := entity.NewIndexIvfFlat(metric, ivfNlist)
	if err != nil {
		return fmt.Errorf("failed to build index config for %q: %w", desc.Name, err)
	}
	if err := s.client.CreateIndex(ctx, desc.Name, FieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create vector index on %q: %w", desc.Name, err)
	}

	s.log.Info(fmt.Sprintf("Created collection %q (dim=%d, metric=%s)", desc.Name, desc.Dimension, desc.Metric))
	return nil
}

// validateExisting checks a pre-existing collection against the descriptor.
func (s *Store) validateExisting(ctx context.Context, desc schema.IndexDescriptor, metric entity.MetricType) error {
	coll, err := s.client.DescribeCollection(ctx, desc.Name)
	if err != nil {
		return fmt.Errorf("failed to describe collection %q: %w", desc.Name, err)
	}
	for _, field := range coll.Schema.Fields {
		if field.Name != FieldEmbedding {
			continue
		}
		dimStr, ok := field.TypeParams[entity.TypeParamDim]
		if !ok {
			continue
		}
		dim, err := strconv.Atoi(dimStr)
		if err != nil {
			return fmt.Errorf("collection %q has malformed dimension %q: %w", desc.Name, dimStr, err)
		}
		if dim != desc.Dimension {
			return fmt.Errorf("collection %q has dimension %d, descriptor wants %d", desc.Name, dim, desc.Dimension)
		}
	}

	indexes, err := s.client.DescribeIndex(ctx, desc.Name, FieldEmbedding)
	if err != nil {
		return fmt.Errorf("failed to describe index on %q: %w", desc.Name, err)
	}
	for _, idx := range indexes {
		existing, ok := idx.Params()["metric_type"]
		if ok && existing != string(metric) {
			return fmt.Errorf("collection %q uses metric %s, descriptor wants %s", desc.Name, existing, metric)
		}
	}
	return nil
}

// EnsureNamespace creates the partition if it does not already exist.
func (s *Store) EnsureNamespace(ctx context.Context, index, namespace string) error {
	exists, err := s.NamespaceExists(ctx, index, namespace)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.client.CreatePartition(ctx, index, namespace); err != nil {
		return fmt.Errorf("failed to create partition %q in %q: %w", namespace, index, err)
	}
	s.log.Info(fmt.Sprintf("Created partition %q in collection %q", namespace, index))
	return nil
}

// ListNamespaces returns the names of the index's partitions. An absent
// index yields schema.ErrIndexNotFound.
func (s *Store) ListNamespaces(ctx context.Context, index string) ([]string, error) {
	exists, err := s.client.HasCollection(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %q: %w", index, err)
	}
	if !exists {
		return nil, schema.ErrIndexNotFound
	}
	partitions, err := s.client.ShowPartitions(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions of %q: %w", index, err)
	}
	names := make([]string, 0, len(partitions))
	for _, p := range partitions {
		names = append(names, p.Name)
	}
	return names, nil
}

// NamespaceExists reports whether the partition exists in the index. An
// absent index counts as an absent namespace.
func (s *Store) NamespaceExists(ctx context.Context, index, namespace string) (bool, error) {
	names, err := s.ListNamespaces(ctx, index)
	if errors.Is(err, schema.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == namespace {
			return true, nil
		}
	}
	return false, nil
}

// Insert writes all records into (index, namespace) in one batched call.
// Writes are at-least-once and non-atomic: a failure leaves already-flushed
// records in place.
func (s *Store) Insert(ctx context.Context, index, namespace string, records []schema.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	chunks := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		chunks[i] = rec.Text
		vectors[i] = rec.Vector
	}

	idCol := entity.NewColumnVarChar(FieldID, ids)
	chunkCol := entity.NewColumnVarChar(FieldChunk, chunks)
	vectorCol := entity.NewColumnFloatVector(FieldEmbedding, len(vectors[0]), vectors)

	if _, err := s.client.Insert(ctx, index, namespace, idCol, chunkCol, vectorCol); err != nil {
		return fmt.Errorf("failed to batch insert into %q/%q: %w", index, namespace, err)
	}

	s.log.Info(fmt.Sprintf("Inserted %d records into %q/%q", len(records), index, namespace))
	return nil
}

// Search runs a similarity search within one partition, best matches first.
func (s *Store) Search(ctx context.Context, index, namespace string, vector []float32, topK int) ([]schema.Match, error) {
	exists, err := s.client.HasCollection(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %q: %w", index, err)
	}
	if !exists {
		return nil, schema.ErrIndexNotFound
	}
	nsExists, err := s.NamespaceExists(ctx, index, namespace)
	if err != nil {
		return nil, err
	}
	if !nsExists {
		return nil, schema.ErrNamespaceNotFound
	}

	if err := s.client.LoadCollection(ctx, index, false); err != nil {
		return nil, fmt.Errorf("failed to load collection %q: %w", index, err)
	}

	indexes, err := s.client.DescribeIndex(ctx, index, FieldEmbedding)
	if err != nil || len(indexes) == 0 {
		return nil, fmt.Errorf("failed to describe index on %q: %w", index, err)
	}
	metric := entity.MetricType(indexes[0].Params()["metric_type"])

	sp, _ := entity.NewIndexIvfFlatSearchParam(searchNprobe)
	results, err := s.client.Search(
		ctx, index, []string{namespace}, "",
		[]string{FieldID, FieldChunk},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding, metric, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search in %q/%q failed: %w", index, namespace, err)
	}

	var matches []schema.Match
	for _, res := range results {
		var idData, chunkData []string
		for _, field := range res.Fields {
			col, ok := field.(*entity.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case FieldID:
				idData = col.Data()
			case FieldChunk:
				chunkData = col.Data()
			}
		}
		for i := 0; i < res.ResultCount; i++ {
			match := schema.Match{Score: res.Scores[i]}
			if i < len(idData) {
				match.ID = idData[i]
			}
			if i < len(chunkData) {
				match.Text = chunkData[i]
			}
			matches = append(matches, match)
		}
	}

	return matches, nil
}

var _ vectorstore.Store = (*Store)(nil)

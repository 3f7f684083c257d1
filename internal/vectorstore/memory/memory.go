// Package memory is a thread-safe, in-process implementation of the vector
// store used by tests and by deployments that have no Milvus available. It
// ranks matches with brute-force similarity over all vectors in a namespace.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"studybot/internal/schema"
	"studybot/internal/vectorstore"
)

type index struct {
	desc       schema.IndexDescriptor
	namespaces map[string][]schema.IndexedRecord
}

// Store holds every index in process memory.
type Store struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{indexes: make(map[string]*index)}
}

// EnsureIndex creates the index if absent. An existing index is validated
// against the descriptor's dimension and metric.
func (s *Store) EnsureIndex(ctx context.Context, desc schema.IndexDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.indexes[desc.Name]; ok {
		if existing.desc.Dimension != desc.Dimension {
			return fmt.Errorf("index %q has dimension %d, descriptor wants %d", desc.Name, existing.desc.Dimension, desc.Dimension)
		}
		if existing.desc.Metric != desc.Metric {
			return fmt.Errorf("index %q uses metric %s, descriptor wants %s", desc.Name, existing.desc.Metric, desc.Metric)
		}
		return nil
	}
	s.indexes[desc.Name] = &index{
		desc:       desc,
		namespaces: make(map[string][]schema.IndexedRecord),
	}
	return nil
}

// EnsureNamespace creates the namespace if absent.
func (s *Store) EnsureNamespace(ctx context.Context, indexName, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[indexName]
	if !ok {
		return schema.ErrIndexNotFound
	}
	if _, ok := idx.namespaces[namespace]; !ok {
		idx.namespaces[namespace] = nil
	}
	return nil
}

// ListNamespaces returns the index's namespaces.
func (s *Store) ListNamespaces(ctx context.Context, indexName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[indexName]
	if !ok {
		return nil, schema.ErrIndexNotFound
	}
	names := make([]string, 0, len(idx.namespaces))
	for name := range idx.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// NamespaceExists reports whether the namespace exists.
func (s *Store) NamespaceExists(ctx context.Context, indexName, namespace string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[indexName]
	if !ok {
		return false, nil
	}
	_, ok = idx.namespaces[namespace]
	return ok, nil
}

// Insert appends all records to the namespace in one call. Records are not
// deduplicated by content; re-inserting the same text grows the namespace.
func (s *Store) Insert(ctx context.Context, indexName, namespace string, records []schema.IndexedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[indexName]
	if !ok {
		return schema.ErrIndexNotFound
	}
	for _, rec := range records {
		if len(rec.Vector) != idx.desc.Dimension {
			return fmt.Errorf("record %q has dimension %d, index %q wants %d", rec.ID, len(rec.Vector), indexName, idx.desc.Dimension)
		}
	}
	idx.namespaces[namespace] = append(idx.namespaces[namespace], records...)
	return nil
}

// Search ranks the namespace's records against the query vector, best first.
func (s *Store) Search(ctx context.Context, indexName, namespace string, vector []float32, topK int) ([]schema.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[indexName]
	if !ok {
		return nil, schema.ErrIndexNotFound
	}
	records, ok := idx.namespaces[namespace]
	if !ok {
		return nil, schema.ErrNamespaceNotFound
	}
	if topK <= 0 {
		topK = 5
	}

	matches := make([]schema.Match, 0, len(records))
	for _, rec := range records {
		matches = append(matches, schema.Match{
			ID:    rec.ID,
			Text:  rec.Text,
			Score: score(idx.desc.Metric, rec.Vector, vector),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func score(metric schema.Metric, a, b []float32) float32 {
	switch metric {
	case schema.MetricCosine:
		return cosine(a, b)
	default:
		return dot(a, b)
	}
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func cosine(a, b []float32) float32 {
	na := norm(a)
	nb := norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

var _ vectorstore.Store = (*Store)(nil)

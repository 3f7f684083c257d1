package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"studybot/internal/chunker"
	"studybot/internal/schema"
	"studybot/internal/vectorstore/memory"
	"studybot/pkg/logger"
)

// hashEmbedder is a deterministic stand-in for the remote embedding service.
// Identical texts embed identically, so similarity search behaves sensibly.
type hashEmbedder struct {
	dim int
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, e.dim)
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000 - 0.5
	}
	return v, nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Dimension() int { return e.dim }

func testDescriptor(dim int) schema.IndexDescriptor {
	return schema.IndexDescriptor{
		Name:      "test-index",
		Dimension: dim,
		Metric:    schema.MetricCosine,
	}
}

func TestUpsertWritesRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	embedder := &hashEmbedder{dim: 8}
	p := NewIndexingPipeline(chunker.New(50, 5), embedder, store, logger.New("test"))

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)
	if err := p.Upsert(ctx, testDescriptor(8), "ns", text); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	vector, _ := embedder.Embed(ctx, "fox")
	matches, err := store.Search(ctx, "test-index", "ns", vector, 100)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no records written")
	}
	for _, m := range matches {
		if m.Text == "" {
			t.Errorf("record %s has empty text", m.ID)
		}
	}
}

func TestUpsertRecordIDsUnique(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := NewIndexingPipeline(chunker.New(30, 0), &hashEmbedder{dim: 4}, store, logger.New("test"))

	var sb strings.Builder
	for i := 0; i < 5000; i++ {
		sb.WriteString(fmt.Sprintf("segment %d padding words here\n", i))
	}
	// Two upserts of the same text must not collide either.
	if err := p.Upsert(ctx, testDescriptor(4), "ns", sb.String()); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	if err := p.Upsert(ctx, testDescriptor(4), "ns", sb.String()); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	matches, err := store.Search(ctx, "test-index", "ns", []float32{1, 0, 0, 0}, 1000000)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m.ID] {
			t.Fatalf("duplicate record id %s", m.ID)
		}
		seen[m.ID] = true
	}
	if len(seen) < 10000 {
		t.Errorf("expected at least 10000 records, got %d", len(seen))
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := NewIndexingPipeline(chunker.New(400, 20), &hashEmbedder{dim: 4}, store, logger.New("test"))

	err := p.Upsert(ctx, testDescriptor(8), "ns", "some text")
	if err == nil {
		t.Fatal("expected error for embedder/index dimension mismatch")
	}
	// The mismatch is caught before anything is created.
	if _, err := store.ListNamespaces(ctx, "test-index"); !errors.Is(err, schema.ErrIndexNotFound) {
		t.Errorf("index was created despite dimension mismatch: %v", err)
	}
}

func TestUpsertEmptyText(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := NewIndexingPipeline(chunker.New(400, 20), &hashEmbedder{dim: 4}, store, logger.New("test"))

	if err := p.Upsert(ctx, testDescriptor(4), "ns", "   \n"); err != nil {
		t.Fatalf("Upsert of empty text failed: %v", err)
	}
	// Index and namespace still come into existence so later lookups succeed.
	exists, err := store.NamespaceExists(ctx, "test-index", "ns")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("namespace not created for empty ingestion")
	}
}

func TestRetrieveZeroMatches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.EnsureIndex(ctx, testDescriptor(4)); err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureNamespace(ctx, "test-index", "ns"); err != nil {
		t.Fatal(err)
	}

	p := NewRetrievalPipeline(&hashEmbedder{dim: 4}, store, logger.New("test"))
	rc, err := p.Retrieve(ctx, "anything", "test-index", "ns")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !rc.Empty() {
		t.Errorf("expected empty context, got %d texts", len(rc.Texts))
	}
}

func TestRetrieveMissingNamespace(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.EnsureIndex(ctx, testDescriptor(4)); err != nil {
		t.Fatal(err)
	}

	p := NewRetrievalPipeline(&hashEmbedder{dim: 4}, store, logger.New("test"))
	_, err := p.Retrieve(ctx, "anything", "test-index", "absent")
	if !errors.Is(err, schema.ErrNamespaceNotFound) {
		t.Errorf("expected ErrNamespaceNotFound, got %v", err)
	}

	_, err = p.Retrieve(ctx, "anything", "absent-index", "ns")
	if !errors.Is(err, schema.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestRetrieveCharBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	desc := testDescriptor(2)
	if err := store.EnsureIndex(ctx, desc); err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureNamespace(ctx, "test-index", "ns"); err != nil {
		t.Fatal(err)
	}

	// Scores descend with the second component, fixing the rank order.
	long := strings.Repeat("a", 100)
	records := []schema.IndexedRecord{
		{ID: "1", Vector: []float32{1, 0.9}, Text: long},
		{ID: "2", Vector: []float32{1, 0.5}, Text: long},
		{ID: "3", Vector: []float32{1, 0.1}, Text: long},
	}
	if err := store.Insert(ctx, "test-index", "ns", records); err != nil {
		t.Fatal(err)
	}

	query := "what is it"
	base := len(promptStart) + len(promptEnd(query))

	// Embed the query with a fixed vector aligned with record 1.
	embedder := &fixedEmbedder{vector: []float32{1, 0.9}}

	p := NewRetrievalPipeline(embedder, store, logger.New("test"))
	p.CharBudget = base + len(long) + 50
	rc, err := p.Retrieve(ctx, query, "test-index", "ns")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(rc.Texts) != 1 {
		t.Fatalf("expected 1 text under tight budget, got %d", len(rc.Texts))
	}

	p.CharBudget = base + 3*(len(contextSeparator)+len(long)) + 50
	rc, err = p.Retrieve(ctx, query, "test-index", "ns")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(rc.Texts) != 3 {
		t.Fatalf("expected all 3 texts under loose budget, got %d", len(rc.Texts))
	}
}

type fixedEmbedder struct {
	vector []float32
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector, nil
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.vector
	}
	return out, nil
}

func (e *fixedEmbedder) Dimension() int { return len(e.vector) }

func TestBuildPrompt(t *testing.T) {
	rc := schema.RetrievalContext{Texts: []string{"first chunk", "second chunk"}}
	got := BuildPrompt("What now?", rc)

	if !strings.HasPrefix(got, promptStart) {
		t.Error("prompt missing instruction prefix")
	}
	if !strings.Contains(got, contextSeparator+"first chunk"+contextSeparator+"second chunk") {
		t.Error("prompt missing separated context body")
	}
	if !strings.HasSuffix(got, "\n\n Context end\n\nQuestion: What now?\nAnswer:") {
		t.Errorf("prompt has wrong suffix: %q", got[len(got)-60:])
	}
}

// scriptedLLM returns canned responses and errors in sequence and records how
// many calls it received.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (l *scriptedLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	i := l.calls
	l.calls++
	if i < len(l.errs) && l.errs[i] != nil {
		return "", l.errs[i]
	}
	if i < len(l.responses) {
		return l.responses[i], nil
	}
	return l.responses[len(l.responses)-1], nil
}

func (l *scriptedLLM) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return l.Complete(ctx, system, prompt)
}

func fastSynthesis(client *scriptedLLM) *SynthesisPipeline {
	p := NewSynthesisPipeline(client, logger.New("test"))
	p.InitialInterval = time.Millisecond
	p.MaxInterval = 2 * time.Millisecond
	return p
}

func TestSynthesizeSuccess(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"Answer":"Option C","Justification":"because"}`}}
	p := fastSynthesis(llm)

	answer, err := p.Synthesize(context.Background(), "q", schema.RetrievalContext{Texts: []string{"ctx"}})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if answer.Letter() != "C" || answer.Justification != "because" {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if llm.calls != 1 {
		t.Errorf("expected 1 call, got %d", llm.calls)
	}
}

func TestSynthesizeRetriesTransient(t *testing.T) {
	transient := &schema.TransportError{Op: "complete", Err: errors.New("reset")}
	llm := &scriptedLLM{
		errs:      []error{transient, transient, nil},
		responses: []string{"", "", `{"Answer":"A","Justification":"ok"}`},
	}
	p := fastSynthesis(llm)

	answer, err := p.Synthesize(context.Background(), "q", schema.RetrievalContext{Texts: []string{"ctx"}})
	if err != nil {
		t.Fatalf("Synthesize failed after retries: %v", err)
	}
	if answer.Letter() != "A" {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if llm.calls != 3 {
		t.Errorf("expected 3 calls, got %d", llm.calls)
	}
}

func TestSynthesizeRetryBudgetExhausted(t *testing.T) {
	transient := &schema.TransportError{Op: "complete", Err: errors.New("reset")}
	llm := &scriptedLLM{errs: []error{transient, transient, transient, transient}}
	p := fastSynthesis(llm)

	_, err := p.Synthesize(context.Background(), "q", schema.RetrievalContext{Texts: []string{"ctx"}})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var transportErr *schema.TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("expected transport error, got %v", err)
	}
	if llm.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", llm.calls)
	}
}

func TestSynthesizePermanentNotRetried(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("invalid api key")}}
	p := fastSynthesis(llm)

	_, err := p.Synthesize(context.Background(), "q", schema.RetrievalContext{Texts: []string{"ctx"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.calls != 1 {
		t.Errorf("permanent failure retried: %d calls", llm.calls)
	}
}

func TestSynthesizeMalformedResponseNotRetried(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"not json at all"}}
	p := fastSynthesis(llm)

	_, err := p.Synthesize(context.Background(), "q", schema.RetrievalContext{Texts: []string{"ctx"}})
	if err == nil {
		t.Fatal("expected error for malformed response")
	}
	var schemaErr *schema.SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Errorf("expected schema validation error, got %v", err)
	}
	if llm.calls != 1 {
		t.Errorf("malformed response retried: %d calls", llm.calls)
	}
}

func TestParseAnswer(t *testing.T) {
	answer, err := ParseAnswer(`{"Answer":"Option D","Justification":"sound reasoning"}`)
	if err != nil {
		t.Fatalf("ParseAnswer failed: %v", err)
	}
	if answer.Letter() != "D" {
		t.Errorf("unexpected letter %q", answer.Letter())
	}

	for _, raw := range []string{
		"plain text",
		`{"Answer":"Option D"}`,
		`{"Justification":"only"}`,
		`{"Answer":"Option Z","Justification":"bad letter"}`,
	} {
		if _, err := ParseAnswer(raw); err == nil {
			t.Errorf("ParseAnswer(%q) accepted invalid input", raw)
		}
	}
}

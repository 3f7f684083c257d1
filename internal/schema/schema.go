package schema

import (
	"fmt"
	"strings"
)

// Metric identifies the similarity metric a vector index is built with.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dot_product"
)

// IndexDescriptor describes a vector index. An index is created once and is
// immutable thereafter; EnsureIndex treats it as create-if-absent.
type IndexDescriptor struct {
	Name        string
	Dimension   int
	Metric      Metric
	CloudRegion string
}

// Chunk is a bounded contiguous text segment produced by the chunker for
// embedding. Chunks are ephemeral: they live for the duration of one
// ingestion call and are never persisted apart from their embedding.
type Chunk struct {
	Text          string
	SequenceIndex int
}

// IndexedRecord is one vector written to an index, together with the chunk
// text it was embedded from. ID must be unique within the index.
type IndexedRecord struct {
	ID     string
	Vector []float32
	Text   string
}

// Match is a single similarity-search hit, best matches first.
type Match struct {
	ID    string
	Text  string
	Score float32
}

// RetrievalContext is the ordered sequence of chunk texts ranked by
// similarity and truncated to fit the retriever's character budget.
type RetrievalContext struct {
	Texts []string
}

// Empty reports whether retrieval produced no usable context. Downstream
// synthesis must still attempt an answer in that case.
func (c RetrievalContext) Empty() bool {
	return len(c.Texts) == 0
}

// Question is a multiple-choice question with four lettered options.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Markdown renders the question the way it is presented to the model.
func (q Question) Markdown() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### %s\n\n", q.Question))
	sb.WriteString("Options:\n\n")
	for _, option := range q.Options {
		sb.WriteString(fmt.Sprintf("- %s\n", option))
	}
	return sb.String()
}

// QuestionAnswer is a question bank entry: a question plus its known answer
// and justification. Used when ingesting QA banks into the index.
type QuestionAnswer struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	Answer        string   `json:"answer"`
	Justification string   `json:"justification"`
}

// Markdown renders the QA entry in the form that gets chunked and indexed.
func (qa QuestionAnswer) Markdown() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### %s\n\n", qa.Question))
	for _, option := range qa.Options {
		sb.WriteString(fmt.Sprintf("%s\n", option))
	}
	sb.WriteString(fmt.Sprintf("\nAnswer: %s with justification - %s\n\n", qa.Answer, qa.Justification))
	return sb.String()
}

// Answer is the structured output of one synthesis call. The JSON field names
// are fixed: pre-existing answer sets were persisted with these keys and must
// round-trip bit-exact.
type Answer struct {
	Answer        string `json:"Answer"`
	Justification string `json:"Justification"`
}

// Letter extracts the bare option letter from the answer value, which may be
// either "Option C" or "C".
func (a Answer) Letter() string {
	return strings.TrimSpace(strings.TrimPrefix(a.Answer, "Option"))
}

// Validate checks the answer against the required shape: both fields present
// and the answer naming one of the four options.
func (a Answer) Validate() error {
	if a.Answer == "" {
		return &SchemaValidationError{Field: "Answer", Raw: a.Answer}
	}
	if a.Justification == "" {
		return &SchemaValidationError{Field: "Justification", Raw: a.Answer}
	}
	switch a.Letter() {
	case "A", "B", "C", "D":
		return nil
	}
	return &SchemaValidationError{Field: "Answer", Raw: a.Answer}
}

// QueryResult is the tagged outcome of one Query call. Code follows the
// HTTP-style convention the surrounding service layer maps onto: 200 with an
// answer, 404 when the knowledge base namespace does not exist, 500 on
// internal failure.
type QueryResult struct {
	Code   int    `json:"code"`
	Answer string `json:"answer"`
}

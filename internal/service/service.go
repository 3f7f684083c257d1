// Package service exposes the retrieval-augmented answering core to the
// surrounding layers: text ingestion, knowledge-base queries and
// multiple-choice question answering. Failures cross this boundary as tagged
// results or typed errors, never as panics.
package service

import (
	"context"
	"fmt"

	"studybot/internal/naming"
	"studybot/internal/pipeline"
	"studybot/internal/schema"
	"studybot/internal/vectorstore"
	"studybot/pkg/logger"
)

// ContextKind selects which knowledge base grounds a question: the embedded
// QA banks or the per-topic summary notes.
type ContextKind string

const (
	ContextQA      ContextKind = "qa"
	ContextSummary ContextKind = "summary"
)

// QuerySet is the question-bank set the QA answering path retrieves against.
const QuerySet = "B"

// User-facing messages for the tagged Query outcomes.
const (
	msgNotFound = "Knowledge base not found. Please try training again!"
	msgInternal = "Something went wrong. Please try again!"
)

// Service wires the ingestion and query paths together over one vector
// store and one pair of model clients.
type Service struct {
	indexing  *pipeline.IndexingPipeline
	retrieval *pipeline.RetrievalPipeline
	synthesis *pipeline.SynthesisPipeline
	store     vectorstore.Store
	log       *logger.Logger
}

// New creates a Service from explicitly constructed pipelines.
func New(
	indexing *pipeline.IndexingPipeline,
	retrieval *pipeline.RetrievalPipeline,
	synthesis *pipeline.SynthesisPipeline,
	store vectorstore.Store,
	log *logger.Logger,
) *Service {
	return &Service{
		indexing:  indexing,
		retrieval: retrieval,
		synthesis: synthesis,
		store:     store,
		log:       log,
	}
}

// IngestText chunks, embeds and writes text into (index, namespace),
// creating both if absent. Re-ingesting into an existing namespace creates
// duplicate records; callers guard with NamespaceExists or use the
// higher-level ingestion operations which do.
func (s *Service) IngestText(ctx context.Context, desc schema.IndexDescriptor, namespace, text string) error {
	return s.indexing.Upsert(ctx, desc, namespace, text)
}

// NamespaceExists reports whether the namespace has been ingested into the
// index before.
func (s *Service) NamespaceExists(ctx context.Context, index, namespace string) (bool, error) {
	return s.store.NamespaceExists(ctx, index, namespace)
}

// IngestDocument ingests an uploaded document's text under the namespace
// derived from its filename, skipping ingestion when the namespace already
// holds records.
func (s *Service) IngestDocument(ctx context.Context, desc schema.IndexDescriptor, filename, text string) error {
	namespace := naming.FileNamespace(filename)
	exists, err := s.store.NamespaceExists(ctx, desc.Name, namespace)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info(fmt.Sprintf("Namespace %q already ingested in %q, skipping", namespace, desc.Name))
		return nil
	}
	return s.indexing.Upsert(ctx, desc, namespace, text)
}

// IngestSummary ingests a topic's summary note into the summary index under
// the topic's summary namespace. Already-ingested topics are skipped.
func (s *Service) IngestSummary(ctx context.Context, topic, summary string) error {
	desc := naming.SummaryIndex()
	namespace := naming.SummaryNamespace(topic)
	exists, err := s.store.NamespaceExists(ctx, desc.Name, namespace)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info(fmt.Sprintf("Summary for topic %q already ingested, skipping", topic))
		return nil
	}
	return s.indexing.Upsert(ctx, desc, namespace, summary)
}

// IngestQuestionBank renders each entry of a topic's QA bank to markdown and
// ingests it into the QA index under the topic's per-set namespace. A failed
// entry is logged and does not abort its siblings; the first error is
// reported after the walk.
func (s *Service) IngestQuestionBank(ctx context.Context, topic, set string, bank []schema.QuestionAnswer) error {
	desc := naming.QAIndex()
	namespace := naming.QANamespace(topic, set)
	exists, err := s.store.NamespaceExists(ctx, desc.Name, namespace)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info(fmt.Sprintf("QA bank %q/%s already ingested, skipping", topic, set))
		return nil
	}

	var firstErr error
	for i, qa := range bank {
		if err := s.indexing.Upsert(ctx, desc, namespace, qa.Markdown()); err != nil {
			s.log.WithError(err).Error(fmt.Sprintf("Failed to ingest QA entry %d of topic %q", i, topic))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Query answers a free-form question against the knowledge base derived from
// sourceName. The outcome is a tagged result: 404 when the namespace was
// never ingested, 500 on internal failure, 200 with the answer text.
func (s *Service) Query(ctx context.Context, sourceName, queryText string, index string) schema.QueryResult {
	namespace := naming.FileNamespace(sourceName)

	exists, err := s.store.NamespaceExists(ctx, index, namespace)
	if err != nil {
		s.log.WithError(err).Error(fmt.Sprintf("Failed to check namespace %q in %q", namespace, index))
		return schema.QueryResult{Code: 500, Answer: msgInternal}
	}
	if !exists {
		return schema.QueryResult{Code: 404, Answer: msgNotFound}
	}

	rc, err := s.retrieval.Retrieve(ctx, queryText, index, namespace)
	if err != nil {
		s.log.WithError(err).Error("Retrieval failed")
		return schema.QueryResult{Code: 500, Answer: msgInternal}
	}

	answer, err := s.synthesis.SynthesizeText(ctx, queryText, rc)
	if err != nil {
		s.log.WithError(err).Error("Synthesis failed")
		return schema.QueryResult{Code: 500, Answer: msgInternal}
	}

	return schema.QueryResult{Code: 200, Answer: answer}
}

// AnswerQuestion grounds a multiple-choice question in the chosen knowledge
// base and synthesizes a structured answer. A nil answer with a non-nil
// error signals a failed synthesis; callers record it as a failed question
// rather than an exception.
func (s *Service) AnswerQuestion(ctx context.Context, topic string, question schema.Question, kind ContextKind) (*schema.Answer, error) {
	var index, namespace string
	switch kind {
	case ContextSummary:
		index = naming.IndexSummary
		namespace = naming.SummaryNamespace(topic)
	case ContextQA:
		index = naming.IndexQA
		namespace = naming.QANamespace(topic, QuerySet)
	default:
		return nil, fmt.Errorf("unknown context kind %q", kind)
	}

	query := question.Markdown()
	rc, err := s.retrieval.Retrieve(ctx, query, index, namespace)
	if err != nil {
		return nil, err
	}

	return s.synthesis.Synthesize(ctx, query, rc)
}

// Package naming derives the namespace and filename conventions used to
// address partitions of the vector indexes. The derivations are deterministic
// and must stay bit-exact: pre-existing index content was written under these
// names, so any drift orphans it.
package naming

import (
	"regexp"
	"strings"

	"studybot/internal/schema"
)

// Fixed index names, one per use case.
const (
	IndexStudyBot = "study-bot"
	IndexSummary  = "cfa-articles-summary"
	IndexQA       = "cfa-articles-qa"
)

// EmbeddingDimension is fixed by the embedding model shared across indexes.
const EmbeddingDimension = 1536

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// Normalize strips non-alphanumeric characters, replaces spaces with
// underscores and lowercases the result. Distinct raw identifiers that
// normalize identically collide by design; callers must keep source
// identifiers distinguishable post-normalization. Normalize takes raw
// identifiers only: the underscores it inserts are themselves stripped on a
// second pass, so derived names must never be fed back in.
func Normalize(name string) string {
	clean := nonAlphanumeric.ReplaceAllString(name, "")
	return strings.ToLower(strings.ReplaceAll(clean, " ", "_"))
}

// SummaryNamespace returns the namespace holding a topic's summary chunks.
func SummaryNamespace(topic string) string {
	return "doc-summary-" + strings.ReplaceAll(topic, " ", "-")
}

// QANamespace returns the namespace holding a topic's QA bank for one set.
func QANamespace(topic, set string) string {
	return Normalize(topic) + "_technical_qa_set" + set
}

// QAFilename returns the filename a topic's QA bank for one set is stored
// under.
func QAFilename(topic, filetype, set string) string {
	return QANamespace(topic, set) + "." + filetype
}

// FileNamespace returns the namespace for a generic uploaded file, derived
// from its original name.
func FileNamespace(filename string) string {
	return Normalize(filename)
}

// StudyBotIndex describes the index holding uploaded documents and QA banks.
func StudyBotIndex() schema.IndexDescriptor {
	return schema.IndexDescriptor{
		Name:        IndexStudyBot,
		Dimension:   EmbeddingDimension,
		Metric:      schema.MetricCosine,
		CloudRegion: "us-east-1",
	}
}

// SummaryIndex describes the index holding per-topic summary notes.
func SummaryIndex() schema.IndexDescriptor {
	return schema.IndexDescriptor{
		Name:        IndexSummary,
		Dimension:   EmbeddingDimension,
		Metric:      schema.MetricDotProduct,
		CloudRegion: "us-west-2",
	}
}

// QAIndex describes the index holding embedded QA banks per topic and set.
func QAIndex() schema.IndexDescriptor {
	return schema.IndexDescriptor{
		Name:        IndexQA,
		Dimension:   EmbeddingDimension,
		Metric:      schema.MetricCosine,
		CloudRegion: "us-east-1",
	}
}

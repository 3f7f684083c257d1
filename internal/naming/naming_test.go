package naming

import (
	"testing"

	"studybot/internal/schema"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Quantitative Methods", "quantitative_methods"},
		{"quantitative methods", "quantitative_methods"},
		{"Ethics & Trust!", "ethics__trust"},
		{"report.pdf", "reportpdf"},
		{"Already_Clean", "alreadyclean"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	inputs := []string{"Quantitative Methods", "Fixed Income 101", "a b c"}
	for _, in := range inputs {
		first := Normalize(in)
		for i := 0; i < 3; i++ {
			if got := Normalize(in); got != first {
				t.Errorf("Normalize(%q) unstable: %q then %q", in, first, got)
			}
		}
	}
}

func TestNormalizeNotIdempotent(t *testing.T) {
	// Underscores are inserted for spaces but stripped as non-alphanumeric,
	// so re-normalizing an already-normalized name collapses it further. The
	// derivation contract is on raw inputs only; callers must never feed a
	// derived name back in.
	if got := Normalize(Normalize("a b c")); got != "abc" {
		t.Errorf("Normalize(Normalize(\"a b c\")) = %q, want %q", got, "abc")
	}
}

func TestSummaryNamespace(t *testing.T) {
	if got := SummaryNamespace("Quantitative Methods"); got != "doc-summary-Quantitative-Methods" {
		t.Errorf("SummaryNamespace = %q", got)
	}
	if got := SummaryNamespace("ethics"); got != "doc-summary-ethics" {
		t.Errorf("SummaryNamespace = %q", got)
	}
}

func TestQANamespace(t *testing.T) {
	if got := QANamespace("Quantitative Methods", "B"); got != "quantitative_methods_technical_qa_setB" {
		t.Errorf("QANamespace = %q", got)
	}
}

func TestQAFilename(t *testing.T) {
	if got := QAFilename("Quantitative Methods", "json", "A"); got != "quantitative_methods_technical_qa_setA.json" {
		t.Errorf("QAFilename = %q", got)
	}
}

func TestFileNamespace(t *testing.T) {
	if got := FileNamespace("My Report.pdf"); got != "my_reportpdf" {
		t.Errorf("FileNamespace = %q", got)
	}
}

func TestIndexDescriptors(t *testing.T) {
	sb := StudyBotIndex()
	if sb.Name != IndexStudyBot || sb.Dimension != EmbeddingDimension || sb.Metric != schema.MetricCosine {
		t.Errorf("unexpected study-bot descriptor: %+v", sb)
	}
	sum := SummaryIndex()
	if sum.Name != IndexSummary || sum.Metric != schema.MetricDotProduct || sum.CloudRegion != "us-west-2" {
		t.Errorf("unexpected summary descriptor: %+v", sum)
	}
	qa := QAIndex()
	if qa.Name != IndexQA || qa.Metric != schema.MetricCosine || qa.Dimension != 1536 {
		t.Errorf("unexpected qa descriptor: %+v", qa)
	}
}

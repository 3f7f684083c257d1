package pipeline

import (
	"strings"

	"studybot/internal/schema"
)

// The prompt framing is fixed. Pre-existing answer sets were produced with
// these exact strings, so they must not drift.
const (
	systemPrompt = "You are a helpful answer bot designed to output JSON."

	plainSystemPrompt = "You are a helpful answer bot."

	promptStart = `Answer the question based on the context below along with brief justifications.
        Please ensure that each answer is accompanied by a brief explanation, starting with "Answer:" followed by the correct option and "with justification - " followed by the rationale supporting the answer.
        Example:
        Answer: C with Justification - Paris is the capital of France, known for its iconic landmarks like the Eiffel Tower.
        

 Context start:
`

	contextSeparator = "\n\n---\n\n"

	promptEndPrefix = "\n\n Context end\n\nQuestion: "
	promptEndSuffix = "\nAnswer:"
)

// promptEnd returns the fixed suffix for a query.
func promptEnd(query string) string {
	return promptEndPrefix + query + promptEndSuffix
}

// BuildPrompt assembles the completion prompt: instruction header, the
// retrieved context body, then the question.
func BuildPrompt(query string, rc schema.RetrievalContext) string {
	var sb strings.Builder
	sb.WriteString(promptStart)
	for _, text := range rc.Texts {
		sb.WriteString(contextSeparator)
		sb.WriteString(text)
	}
	sb.WriteString(promptEnd(query))
	return sb.String()
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"studybot/internal/llm"
	"studybot/internal/schema"
	"studybot/pkg/logger"
)

// Retry policy for synthesis calls: up to maxAttempts attempts in total,
// exponential backoff starting at initialInterval and capped at maxInterval.
// Only transport failures retry; schema, auth and quota failures are
// permanent.
const (
	maxAttempts     = 3
	initialInterval = 1 * time.Second
	maxInterval     = 10 * time.Second
)

// SynthesisPipeline combines an assembled context with a query into one
// completion request and validates the model's structured output.
//
// One synthesis call moves through PENDING, zero or more RETRYING rounds,
// and ends in exactly one of SUCCEEDED, TRANSPORT_FAILED (retry budget
// exhausted) or PARSE_FAILED (never retried).
type SynthesisPipeline struct {
	llm llm.Client
	log *logger.Logger

	// Retry intervals, overridable for tests.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewSynthesisPipeline creates a SynthesisPipeline with the default retry
// policy.
func NewSynthesisPipeline(client llm.Client, log *logger.Logger) *SynthesisPipeline {
	return &SynthesisPipeline{
		llm:             client,
		log:             log,
		InitialInterval: initialInterval,
		MaxInterval:     maxInterval,
	}
}

// Synthesize builds the prompt for the query and context, requests a
// structured completion and decodes it into an Answer. A response that does
// not conform to the Answer shape yields a nil Answer and a
// *schema.SchemaValidationError, distinct from a transport failure, so
// callers can classify "no answer" against "error talking to the service".
func (p *SynthesisPipeline) Synthesize(ctx context.Context, query string, rc schema.RetrievalContext) (*schema.Answer, error) {
	if rc.Empty() {
		p.log.Warn("Synthesizing with empty retrieval context")
	}
	prompt := BuildPrompt(query, rc)

	raw, err := p.complete(ctx, systemPrompt, prompt, true)
	if err != nil {
		p.log.WithError(err).Error("Completion failed after retries")
		return nil, err
	}

	answer, err := ParseAnswer(raw)
	if err != nil {
		p.log.WithError(err).Error("Structured response failed validation")
		return nil, err
	}

	p.log.Info("Synthesized answer " + answer.Letter())
	return answer, nil
}

// SynthesizeText is the plain-text variant used for free-form queries over
// uploaded documents: same prompt and retry policy, but the raw completion
// is returned without structured validation.
func (p *SynthesisPipeline) SynthesizeText(ctx context.Context, query string, rc schema.RetrievalContext) (string, error) {
	raw, err := p.complete(ctx, plainSystemPrompt, BuildPrompt(query, rc), false)
	if err != nil {
		p.log.WithError(err).Error("Completion failed after retries")
		return "", err
	}
	return raw, nil
}

// complete sends the completion request, retrying transient transport
// failures with exponential backoff. structured selects JSON object mode.
func (p *SynthesisPipeline) complete(ctx context.Context, system, prompt string, structured bool) (string, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         p.MaxInterval,
		Clock:               backoff.SystemClock,
	}, maxAttempts-1), ctx)

	var raw string
	operation := func() error {
		var err error
		if structured {
			raw, err = p.llm.CompleteJSON(ctx, system, prompt)
		} else {
			raw, err = p.llm.Complete(ctx, system, prompt)
		}
		if err == nil {
			return nil
		}
		if schema.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		p.log.WithError(err).Warn(fmt.Sprintf("Transient completion failure, retrying in %s", wait))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return raw, nil
}

// ParseAnswer decodes a raw structured response and validates it against the
// Answer shape. Missing fields or an answer value outside the four lettered
// options fail validation.
func ParseAnswer(raw string) (*schema.Answer, error) {
	var answer schema.Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, &schema.SchemaValidationError{Field: "response", Raw: raw}
	}
	if err := answer.Validate(); err != nil {
		return nil, err
	}
	return &answer, nil
}

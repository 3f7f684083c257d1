// Package batch runs many independent question-answering tasks concurrently
// against the synthesis path, bounded by an admission gate and a per-task
// wall-clock budget.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"studybot/internal/schema"
	"studybot/internal/service"
	"studybot/pkg/logger"
)

// Driver defaults: concurrent tasks in flight, per-task wall-clock budget,
// and the pause inserted between dispatches to smooth request-rate spikes
// against the remote service.
const (
	DefaultMaxParallel = 15
	DefaultTaskTimeout = 30 * time.Second
	DefaultPacingDelay = 500 * time.Millisecond
)

// Answerer is the slice of the service the driver needs.
type Answerer interface {
	AnswerQuestion(ctx context.Context, topic string, question schema.Question, kind service.ContextKind) (*schema.Answer, error)
}

// Task is one question to answer, optionally with the expected answer for a
// correctness tally.
type Task struct {
	Topic    string
	Question schema.Question
	Expected string
}

// Result records one completed task.
type Result struct {
	Topic     string          `json:"topic"`
	Question  schema.Question `json:"question"`
	Answer    schema.Answer   `json:"result"`
	Expected  string          `json:"expected_answer"`
	Generated string          `json:"generated_answer"`
	IsCorrect bool            `json:"is_correct"`
}

// Report aggregates a whole run. Results and Failed carry no cross-task
// ordering guarantee; downstream aggregation must not assume input order.
type Report struct {
	Results []Result
	Failed  []schema.Question
}

// Correct counts the results matching their expected answer.
func (r Report) Correct() int {
	n := 0
	for _, res := range r.Results {
		if res.IsCorrect {
			n++
		}
	}
	return n
}

// Driver dispatches tasks through a counting admission gate. Tasks share no
// mutable state beyond the two accumulator lists, which a mutex guards.
type Driver struct {
	answerer Answerer
	kind     service.ContextKind
	log      *logger.Logger

	MaxParallel int64
	TaskTimeout time.Duration
	PacingDelay time.Duration

	mu      sync.Mutex
	results []Result
	failed  []schema.Question
}

// NewDriver creates a Driver answering against the given context kind.
func NewDriver(answerer Answerer, kind service.ContextKind, log *logger.Logger) *Driver {
	return &Driver{
		answerer:    answerer,
		kind:        kind,
		log:         log,
		MaxParallel: DefaultMaxParallel,
		TaskTimeout: DefaultTaskTimeout,
		PacingDelay: DefaultPacingDelay,
	}
}

// Run processes all tasks and returns the aggregated report. A failed or
// timed-out task is counted and never aborts its siblings. On timeout the
// task is abandoned: the underlying remote call keeps running unobserved,
// and callers must tolerate that orphaned work.
func (d *Driver) Run(ctx context.Context, tasks []Task) Report {
	sem := semaphore.NewWeighted(d.MaxParallel)
	var wg sync.WaitGroup

	d.mu.Lock()
	d.results = nil
	d.failed = nil
	d.mu.Unlock()

	for _, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			d.log.WithError(err).Warn("Batch run cancelled while waiting for admission")
			break
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer sem.Release(1)
			d.process(ctx, t)
			// Client-side pacing between dispatches; this is not server
			// backpressure.
			time.Sleep(d.PacingDelay)
		}(task)
	}

	wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	return Report{Results: d.results, Failed: d.failed}
}

type outcome struct {
	answer *schema.Answer
	err    error
}

func (d *Driver) process(ctx context.Context, t Task) {
	done := make(chan outcome, 1)
	go func() {
		answer, err := d.answerer.AnswerQuestion(ctx, t.Topic, t.Question, d.kind)
		done <- outcome{answer: answer, err: err}
	}()

	timer := time.NewTimer(d.TaskTimeout)
	defer timer.Stop()

	select {
	case o := <-done:
		if o.err != nil || o.answer == nil {
			d.log.WithError(o.err).Warn(fmt.Sprintf("No answer for question %q", t.Question.Question))
			d.recordFailure(t.Question)
			return
		}
		d.recordResult(t, *o.answer)
	case <-timer.C:
		capErr := &schema.CapacityError{Task: t.Question.Question, Timeout: d.TaskTimeout}
		d.log.WithError(capErr).Warn("Task abandoned")
		d.recordFailure(t.Question)
	}
}

func (d *Driver) recordResult(t Task, answer schema.Answer) {
	expected := schema.Answer{Answer: t.Expected}.Letter()
	generated := answer.Letter()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, Result{
		Topic:     t.Topic,
		Question:  t.Question,
		Answer:    answer,
		Expected:  expected,
		Generated: generated,
		IsCorrect: expected != "" && generated == expected,
	})
}

func (d *Driver) recordFailure(q schema.Question) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, q)
}

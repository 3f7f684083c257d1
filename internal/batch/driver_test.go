package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studybot/internal/schema"
	"studybot/internal/service"
	"studybot/pkg/logger"
)

// countingAnswerer tracks in-flight concurrency and answers per a scripted
// behavior keyed on the question text.
type countingAnswerer struct {
	inFlight    int64
	maxInFlight int64
	calls       int64
	delay       time.Duration

	mu   sync.Mutex
	seen []string
}

func (a *countingAnswerer) AnswerQuestion(ctx context.Context, topic string, q schema.Question, kind service.ContextKind) (*schema.Answer, error) {
	cur := atomic.AddInt64(&a.inFlight, 1)
	defer atomic.AddInt64(&a.inFlight, -1)
	for {
		max := atomic.LoadInt64(&a.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt64(&a.maxInFlight, max, cur) {
			break
		}
	}
	atomic.AddInt64(&a.calls, 1)

	a.mu.Lock()
	a.seen = append(a.seen, q.Question)
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if strings.Contains(q.Question, "fail") {
		return nil, errors.New("synthesis failed")
	}
	if strings.Contains(q.Question, "slow") {
		time.Sleep(200 * time.Millisecond)
	}
	return &schema.Answer{Answer: "Option B", Justification: "scripted"}, nil
}

func fastDriver(a *countingAnswerer) *Driver {
	d := NewDriver(a, service.ContextQA, logger.New("test"))
	d.TaskTimeout = time.Second
	d.PacingDelay = 0
	return d
}

func makeTasks(n int, expected string) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			Topic:    "topic",
			Question: schema.Question{Question: fmt.Sprintf("question %d", i)},
			Expected: expected,
		}
	}
	return tasks
}

func TestRunAnswersAllTasks(t *testing.T) {
	answerer := &countingAnswerer{}
	d := fastDriver(answerer)

	report := d.Run(context.Background(), makeTasks(40, "Option B"))
	if len(report.Results) != 40 {
		t.Fatalf("expected 40 results, got %d", len(report.Results))
	}
	if len(report.Failed) != 0 {
		t.Errorf("expected no failures, got %d", len(report.Failed))
	}
	if got := report.Correct(); got != 40 {
		t.Errorf("expected 40 correct, got %d", got)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	answerer := &countingAnswerer{delay: 10 * time.Millisecond}
	d := fastDriver(answerer)
	d.MaxParallel = 15

	d.Run(context.Background(), makeTasks(100, ""))

	if answerer.calls != 100 {
		t.Fatalf("expected 100 calls, got %d", answerer.calls)
	}
	if answerer.maxInFlight > 15 {
		t.Errorf("observed %d tasks in flight, limit is 15", answerer.maxInFlight)
	}
	if answerer.maxInFlight < 2 {
		t.Errorf("tasks never overlapped, max in flight %d", answerer.maxInFlight)
	}
}

func TestRunFailureDoesNotAbortSiblings(t *testing.T) {
	answerer := &countingAnswerer{}
	d := fastDriver(answerer)

	tasks := makeTasks(10, "Option B")
	tasks[3].Question.Question = "please fail 3"
	tasks[7].Question.Question = "please fail 7"

	report := d.Run(context.Background(), tasks)
	if len(report.Results) != 8 {
		t.Errorf("expected 8 results, got %d", len(report.Results))
	}
	if len(report.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(report.Failed))
	}
	for _, q := range report.Failed {
		if !strings.Contains(q.Question, "fail") {
			t.Errorf("wrong task recorded as failed: %q", q.Question)
		}
	}
}

func TestRunTimeoutCountsAsFailure(t *testing.T) {
	answerer := &countingAnswerer{}
	d := fastDriver(answerer)
	d.TaskTimeout = 50 * time.Millisecond

	tasks := makeTasks(5, "Option B")
	tasks[2].Question.Question = "slow question"

	report := d.Run(context.Background(), tasks)
	if len(report.Results) != 4 {
		t.Errorf("expected 4 results, got %d", len(report.Results))
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected 1 timed-out failure, got %d", len(report.Failed))
	}
	if report.Failed[0].Question != "slow question" {
		t.Errorf("wrong task timed out: %q", report.Failed[0].Question)
	}
}

func TestRunCorrectnessTally(t *testing.T) {
	answerer := &countingAnswerer{}
	d := fastDriver(answerer)

	// The answerer always returns Option B.
	tasks := makeTasks(6, "Option B")
	tasks[0].Expected = "Option A"
	tasks[1].Expected = "B"
	tasks[2].Expected = ""

	report := d.Run(context.Background(), tasks)
	if len(report.Results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(report.Results))
	}
	// Bare letters and "Option X" forms compare equal; a missing expected
	// answer never counts as correct.
	if got := report.Correct(); got != 4 {
		t.Errorf("expected 4 correct, got %d", got)
	}
}

func TestRunCancelledContextStopsAdmission(t *testing.T) {
	answerer := &countingAnswerer{}
	d := fastDriver(answerer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := d.Run(ctx, makeTasks(10, ""))
	if len(report.Results) != 0 {
		t.Errorf("cancelled run produced %d results", len(report.Results))
	}
}

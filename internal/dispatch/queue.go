// Package dispatch implements the delayed webhook dispatch queue: it
// classifies submission urgency, persists a pending dispatch with a
// computed send time, and schedules a capped best-effort wake-up of the
// external dispatcher.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stepflow-dev/stepflow/internal/logging"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

// wakeCap bounds the wake-up timer: the trigger never waits longer than
// this even when the computed delay is larger. The persisted SendAt, not
// the timer, is the authority on delivery timing.
const wakeCap = 30 * time.Second

// Queue records pending webhook calls for the external dispatcher.
type Queue struct {
	store     ports.DispatchStore
	scheduler ports.WakeScheduler
	waker     ports.DispatcherWaker
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures the Queue.
type Option func(*Queue)

// WithScheduler overrides the default timer-based wake scheduler.
func WithScheduler(s ports.WakeScheduler) Option {
	return func(q *Queue) {
		q.scheduler = s
	}
}

// WithWaker sets the dispatcher wake-up collaborator.
func WithWaker(w ports.DispatcherWaker) Option {
	return func(q *Queue) {
		q.waker = w
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a dispatch queue over the given store.
func NewQueue(store ports.DispatchStore, opts ...Option) *Queue {
	q := &Queue{
		store:     store,
		scheduler: ports.TimerScheduler{},
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue persists a pending dispatch for the lead with an urgency-derived
// send time, then schedules the capped wake-up trigger. Created exactly
// once per accepted submission that declares a webhook target.
func (q *Queue) Enqueue(ctx context.Context, lead *domain.LeadRecord, targetURL string, urgency domain.UrgencyClass) (*domain.QueuedDispatch, error) {
	payload, err := json.Marshal(BuildPayload(lead))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	now := q.now()
	delay := urgency.Delay()
	d := &domain.QueuedDispatch{
		ID:        uuid.NewString(),
		LeadID:    lead.ID,
		TargetURL: targetURL,
		Payload:   payload,
		Urgency:   urgency,
		SendAt:    now.Add(delay),
		Status:    domain.DispatchPending,
		CreatedAt: now,
	}
	if err := q.store.InsertDispatch(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to queue dispatch: %w", err)
	}

	q.scheduleWake(delay)
	return d, nil
}

// scheduleWake arms the fire-and-forget dispatcher wake-up. Failures are
// non-fatal: the dispatcher's own polling picks the row up from SendAt.
func (q *Queue) scheduleWake(delay time.Duration) {
	if q.waker == nil {
		return
	}
	if delay > wakeCap {
		delay = wakeCap
	}
	q.scheduler.AfterFunc(delay, func() {
		if err := q.waker.Wake(context.Background()); err != nil {
			q.logger.Warn("dispatcher wake-up failed", "err", err)
		}
	})
}

// Classify derives the urgency tier from the answers: it finds the first
// authored step whose id or title carries an urgency token and
// pattern-matches that answer's free text against a small fixed
// vocabulary. Scanning in authored order keeps the tier deterministic
// when a form carries more than one urgency-flavored step.
func Classify(flow *domain.Flow, answers map[string]string) domain.UrgencyClass {
	for i := range flow.Steps {
		step := &flow.Steps[i]
		if !isUrgencyStep(step) {
			continue
		}
		if answer := answers[step.ID]; answer != "" {
			return classifyAnswer(answer)
		}
	}
	return domain.UrgencyDefault
}

func isUrgencyStep(step *domain.Step) bool {
	id := strings.ToLower(step.ID)
	title := strings.ToLower(step.Title)
	return strings.Contains(id, "urgency") || strings.Contains(title, "urgency") ||
		strings.Contains(id, "urgencia") || strings.Contains(title, "urgência")
}

func classifyAnswer(answer string) domain.UrgencyClass {
	text := strings.ToLower(answer)
	switch {
	case strings.Contains(text, "urgent"):
		return domain.UrgencyUrgent
	case strings.Contains(text, "week"):
		return domain.UrgencyMedium
	case strings.Contains(text, "research"):
		return domain.UrgencyLow
	default:
		return domain.UrgencyDefault
	}
}

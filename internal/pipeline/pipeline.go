// Package pipeline implements the submission pipeline: validation,
// deduplication, persistence, and the best-effort notification and
// dispatch stages that follow a completed form.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stepflow-dev/stepflow/internal/dispatch"
	"github.com/stepflow-dev/stepflow/internal/logging"
	"github.com/stepflow-dev/stepflow/internal/metrics"
	"github.com/stepflow-dev/stepflow/internal/runtime"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

const (
	defaultDedupWindow = 5 * time.Minute
	dedupQueryLimit    = 50
	defaultSuccessPath = "/thank-you"
)

// ValidationError is a user-correctable rejection. The pipeline aborts
// before any side effect when returning one.
type ValidationError struct {
	Stage   string // "answers", "email" or "fields"
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SubmissionContext carries the page context captured by the host at
// submission time.
type SubmissionContext struct {
	PageURL   string
	Referrer  string
	UserAgent string
	UTM       map[string]string
}

// Result is the visitor-facing outcome of a submission. A duplicate
// short-circuit produces the same success shape as a real submission,
// minus the lead.
type Result struct {
	Lead        *domain.LeadRecord
	Duplicate   bool
	Urgency     domain.UrgencyClass
	RedirectURL string
}

// Pipeline orchestrates the submission sequence for completed forms.
type Pipeline struct {
	leads    ports.LeadStore
	progress ports.ProgressStore
	queue    *dispatch.Queue
	mailer   ports.Mailer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	window   time.Duration
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithMailer sets the confirmation email collaborator.
func WithMailer(m ports.Mailer) Option {
	return func(p *Pipeline) {
		p.mailer = m
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics wires the runtime collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithDedupWindow overrides the trailing dedup window, for tests.
func WithDedupWindow(d time.Duration) Option {
	return func(p *Pipeline) {
		p.window = d
	}
}

// New creates a submission pipeline.
func New(leads ports.LeadStore, progress ports.ProgressStore, queue *dispatch.Queue, opts ...Option) *Pipeline {
	p := &Pipeline{
		leads:    leads,
		progress: progress,
		queue:    queue,
		logger:   logging.NewNop(),
		now:      time.Now,
		window:   defaultDedupWindow,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit runs the pipeline for a completed form. Validation failures
// return a *ValidationError and leave no side effects. Once validation
// passes the visitor always sees success: duplicates short-circuit
// silently and collaborator failures are confined to logs.
func (p *Pipeline) Submit(ctx context.Context, flow *domain.Flow, state *domain.NavigationState, progressKey string, meta SubmissionContext) (*Result, error) {
	if err := p.validate(flow, state); err != nil {
		p.metrics.Submission(flow.Slug, "rejected")
		return nil, err
	}

	contact := ExtractContact(state.Fields, state.Answers)
	urgency := dispatch.Classify(flow, state.Answers)
	redirect := p.resolveRedirect(flow, urgency, contact.Name)

	dup, err := p.isDuplicate(ctx, flow, contact.Email)
	if err != nil {
		// Fail open: a broken dedup query must not block a real lead.
		p.logger.Warn("dedup query failed, proceeding", "form", flow.Slug, "err", err)
	}
	if dup {
		p.logger.Info("duplicate submission suppressed",
			"form", flow.Slug, "session", state.SessionID)
		p.metrics.Submission(flow.Slug, "duplicate")
		p.clearProgress(ctx, flow, progressKey)
		return &Result{Duplicate: true, Urgency: urgency, RedirectURL: redirect}, nil
	}

	lead := p.buildLead(flow, state, contact, meta)
	p.insertLead(ctx, lead)

	// Best-effort stages: failures logged, never surfaced, never abort.
	p.mirrorEvent(ctx, lead)
	p.sendConfirmation(ctx, flow, lead)
	if flow.WebhookURL != "" {
		if _, err := p.queue.Enqueue(ctx, lead, flow.WebhookURL, urgency); err != nil {
			p.logger.Warn("failed to enqueue dispatch", "form", flow.Slug, "lead", lead.ID, "err", err)
		} else {
			p.metrics.DispatchEnqueued()
		}
	}

	p.clearProgress(ctx, flow, progressKey)
	p.metrics.Submission(flow.Slug, "accepted")
	return &Result{Lead: lead, Urgency: urgency, RedirectURL: redirect}, nil
}

// validate runs the abort-on-failure stages in order: answered visited
// questions, email presence, required fields of the current form step.
func (p *Pipeline) validate(flow *domain.Flow, state *domain.NavigationState) error {
	var unanswered []string
	for _, step := range flow.Steps {
		if step.Type != domain.StepQuestion || !state.HasVisited(step.ID) {
			continue
		}
		if state.Answers[step.ID] == "" {
			unanswered = append(unanswered, step.Title)
		}
	}
	if len(unanswered) > 0 {
		return &ValidationError{
			Stage:   "answers",
			Message: fmt.Sprintf("unanswered questions: %s", strings.Join(unanswered, ", ")),
		}
	}

	if lookupAlias("email", state.Fields, state.Answers) == "" {
		return &ValidationError{Stage: "email", Message: "an email address is required"}
	}

	if step, ok := flow.Step(state.CurrentStepID); ok && step.Type == domain.StepForm {
		for _, f := range step.Fields {
			if !f.Required {
				continue
			}
			if strings.TrimSpace(state.Fields[f.Name]) == "" {
				name := f.Label
				if name == "" {
					name = f.Name
				}
				return &ValidationError{
					Stage:   "fields",
					Message: fmt.Sprintf("required field missing: %s", name),
				}
			}
		}
	}
	return nil
}

// isDuplicate checks the trailing dedup window for a prior submission
// with the same normalized email. Two genuine submissions from one
// address inside the window are merged; accepted tradeoff for surviving
// double-clicks without a client-side submit lock.
func (p *Pipeline) isDuplicate(ctx context.Context, flow *domain.Flow, email string) (bool, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return false, nil
	}
	since := p.now().Add(-p.window)
	recent, err := p.leads.RecentLeads(ctx, flow.Slug, since, dedupQueryLimit)
	if err != nil {
		return false, fmt.Errorf("failed to query recent leads: %w", err)
	}
	for _, prior := range recent {
		if NormalizeEmail(prior.Contact.Email) == normalized {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pipeline) buildLead(flow *domain.Flow, state *domain.NavigationState, contact domain.Contact, meta SubmissionContext) *domain.LeadRecord {
	// The record must outlive the session: copy the answer and field maps
	// so later navigation cannot reach into a stored lead.
	answers := make(map[string]string, len(state.Answers))
	responses := make(map[string]string, len(state.Answers))
	for stepID, answer := range state.Answers {
		answers[stepID] = answer
		if step, ok := flow.Step(stepID); ok {
			responses[step.Title] = answer
		}
	}
	fields := make(map[string]string, len(state.Fields))
	for k, v := range state.Fields {
		fields[k] = v
	}

	pct := 0
	if total := runtime.ReachableStepCount(flow); total > 0 {
		pct = len(state.Visited) * 100 / total
		if pct > 100 {
			pct = 100
		}
	}

	return &domain.LeadRecord{
		ID:            uuid.NewString(),
		FormID:        flow.ID,
		FormSlug:      flow.Slug,
		Answers:       answers,
		Fields:        fields,
		Responses:     responses,
		Contact:       contact,
		UTM:           meta.UTM,
		PageURL:       meta.PageURL,
		Referrer:      meta.Referrer,
		UserAgent:     meta.UserAgent,
		SessionID:     state.SessionID,
		CompletionPct: pct,
		SubmittedAt:   p.now(),
	}
}

// insertLead persists the primary record, retrying once. A second
// failure flags the payload and lets the pipeline continue: the
// conversion-event mirror must still carry the attempt to operators.
func (p *Pipeline) insertLead(ctx context.Context, lead *domain.LeadRecord) {
	err := p.leads.InsertLead(ctx, lead)
	if err == nil {
		return
	}
	p.logger.Warn("lead insert failed, retrying", "lead", lead.ID, "err", err)
	if err = p.leads.InsertLead(ctx, lead); err == nil {
		return
	}
	lead.InsertFailed = true
	p.logger.Error("lead insert failed after retry, flagging for follow-up",
		"lead", lead.ID, "form", lead.FormSlug, "err", err)
}

func (p *Pipeline) mirrorEvent(ctx context.Context, lead *domain.LeadRecord) {
	ev := &domain.ConversionEvent{
		ID:            uuid.NewString(),
		LeadID:        lead.ID,
		FormSlug:      lead.FormSlug,
		Email:         lead.Contact.Email,
		CompletionPct: lead.CompletionPct,
		CreatedAt:     p.now(),
	}
	if err := p.leads.InsertEvent(ctx, ev); err != nil {
		p.logger.Warn("failed to write conversion event", "lead", lead.ID, "err", err)
	}
}

func (p *Pipeline) sendConfirmation(ctx context.Context, flow *domain.Flow, lead *domain.LeadRecord) {
	if p.mailer == nil || lead.Contact.Email == "" {
		return
	}
	msg := ports.Email{
		To:      lead.Contact.Email,
		Subject: fmt.Sprintf("We received your request — %s", flow.Name),
		Data: map[string]string{
			"name": lead.Contact.Name,
			"form": flow.Name,
		},
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		p.logger.Warn("failed to send confirmation email", "lead", lead.ID, "err", err)
	}
}

func (p *Pipeline) clearProgress(ctx context.Context, flow *domain.Flow, key string) {
	if err := p.progress.Clear(ctx, key); err != nil {
		p.logger.Warn("failed to clear progress", "form", flow.Slug, "key", key, "err", err)
	}
}

// resolveRedirect picks the post-success destination. Internal paths get
// the urgency tier and visitor name appended as query parameters so the
// destination page can personalize.
func (p *Pipeline) resolveRedirect(flow *domain.Flow, urgency domain.UrgencyClass, name string) string {
	target := flow.RedirectURL
	if target == "" {
		target = defaultSuccessPath
	}
	if domain.IsExternalTarget(target) {
		return target
	}

	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("urgencia", string(urgency))
	if name != "" {
		q.Set("nome", name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

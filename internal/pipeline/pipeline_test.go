package pipeline

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow/internal/dispatch"
	"github.com/stepflow-dev/stepflow/pkg/adapters/memory"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

// flakyLeads wraps the in-memory store with injectable failures.
type flakyLeads struct {
	*memory.Store
	insertFailures int
	recentErr      error
	eventErr       error
}

func (f *flakyLeads) InsertLead(ctx context.Context, lead *domain.LeadRecord) error {
	if f.insertFailures > 0 {
		f.insertFailures--
		return errors.New("insert refused")
	}
	return f.Store.InsertLead(ctx, lead)
}

func (f *flakyLeads) RecentLeads(ctx context.Context, slug string, since time.Time, limit int) ([]domain.LeadRecord, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.Store.RecentLeads(ctx, slug, since, limit)
}

func (f *flakyLeads) InsertEvent(ctx context.Context, ev *domain.ConversionEvent) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	return f.Store.InsertEvent(ctx, ev)
}

type recordingMailer struct {
	sent []ports.Email
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg ports.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func leadGenFlow(t *testing.T) *domain.Flow {
	t.Helper()
	flow, err := domain.NewFlow("f1", "lead-gen", []domain.Step{
		{
			ID:    "urgency",
			Type:  domain.StepQuestion,
			Title: "How soon do you need this?",
			Options: []domain.Option{
				{Text: "Urgent, this month"},
				{Text: "In a few weeks"},
				{Text: "Just researching"},
			},
		},
		{
			ID:    "contact",
			Type:  domain.StepForm,
			Title: "How can we reach you?",
			Fields: []domain.FormField{
				{Name: "email", Type: "email", Required: true, Label: "Email"},
				{Name: "name", Type: "text", Required: true, Label: "Name"},
			},
		},
	}, []domain.Edge{
		{Source: "urgency", Target: "contact"},
	})
	require.NoError(t, err)
	flow.WebhookURL = "https://hooks.example.com/leads"
	flow.RedirectURL = "/obrigado"
	return flow
}

func completedState() *domain.NavigationState {
	state := domain.NewState("urgency")
	state.Answers["urgency"] = "Urgent, this month"
	state.History = append(state.History, "urgency")
	state.CurrentStepID = "contact"
	state.MarkVisited("contact")
	state.Fields["email"] = "ana@example.com"
	state.Fields["name"] = "Ana"
	return state
}

func newTestPipeline(t *testing.T, leads ports.LeadStore, opts ...Option) (*Pipeline, *memory.Store, *memory.Store) {
	t.Helper()
	progress := memory.NewStore()
	dispatches := memory.NewStore()
	queue := dispatch.NewQueue(dispatches)
	return New(leads, progress, queue, opts...), progress, dispatches
}

func TestSubmit_AcceptedLead(t *testing.T) {
	flow := leadGenFlow(t)
	state := completedState()
	leads := memory.NewStore()
	mailer := &recordingMailer{}
	p, progress, dispatches := newTestPipeline(t, leads, WithMailer(mailer))

	key := "lead-gen:sess-1"
	require.NoError(t, progress.Save(context.Background(), key, state))

	res, err := p.Submit(context.Background(), flow, state, key, SubmissionContext{
		PageURL: "https://example.com/lead-gen",
		UTM:     map[string]string{"utm_source": "ads"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Lead)

	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.UrgencyUrgent, res.Urgency)
	assert.Equal(t, "ana@example.com", res.Lead.Contact.Email)
	assert.Equal(t, "lead-gen", res.Lead.FormSlug)
	assert.Equal(t, 100, res.Lead.CompletionPct)
	assert.False(t, res.Lead.InsertFailed)

	stored, err := leads.GetLead(context.Background(), res.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Urgent, this month", stored.Responses["How soon do you need this?"])

	// Conversion event mirrored, confirmation sent, dispatch queued.
	require.Len(t, leads.Events(), 1)
	assert.Equal(t, res.Lead.ID, leads.Events()[0].LeadID)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ana@example.com", mailer.sent[0].To)
	require.Len(t, dispatches.Dispatches(), 1)
	assert.Equal(t, domain.UrgencyUrgent, dispatches.Dispatches()[0].Urgency)

	// Progress cleared on success.
	_, err = progress.Load(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSubmit_RedirectCarriesUrgencyAndName(t *testing.T) {
	flow := leadGenFlow(t)
	p, _, _ := newTestPipeline(t, memory.NewStore())

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/obrigado", u.Path)
	assert.Equal(t, "urgent", u.Query().Get("urgencia"))
	assert.Equal(t, "Ana", u.Query().Get("nome"))
}

func TestSubmit_DefaultRedirectPath(t *testing.T) {
	flow := leadGenFlow(t)
	flow.RedirectURL = ""
	p, _, _ := newTestPipeline(t, memory.NewStore())

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/thank-you", u.Path)
	assert.Equal(t, "urgent", u.Query().Get("urgencia"))
}

func TestSubmit_ExternalRedirectUntouched(t *testing.T) {
	flow := leadGenFlow(t)
	flow.RedirectURL = "https://partner.example.com/welcome"
	p, _, _ := newTestPipeline(t, memory.NewStore())

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)
	assert.Equal(t, "https://partner.example.com/welcome", res.RedirectURL)
}

func TestSubmit_LeadIsDetachedFromSessionState(t *testing.T) {
	flow := leadGenFlow(t)
	state := completedState()
	leads := memory.NewStore()
	p, _, _ := newTestPipeline(t, leads)

	res, err := p.Submit(context.Background(), flow, state, "k", SubmissionContext{})
	require.NoError(t, err)

	// Mutations on the live session after submission must not reach the
	// stored record.
	state.Answers["urgency"] = "changed my mind"
	state.Fields["email"] = "other@example.com"

	stored, err := leads.GetLead(context.Background(), res.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Urgent, this month", stored.Answers["urgency"])
	assert.Equal(t, "ana@example.com", stored.Fields["email"])
}

func TestSubmit_RejectsUnansweredVisitedQuestion(t *testing.T) {
	flow := leadGenFlow(t)
	state := completedState()
	delete(state.Answers, "urgency")
	leads := memory.NewStore()
	p, _, dispatches := newTestPipeline(t, leads)

	_, err := p.Submit(context.Background(), flow, state, "k", SubmissionContext{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "answers", verr.Stage)
	assert.Contains(t, verr.Message, "How soon do you need this?")

	// No side effects on rejection.
	assert.Empty(t, leads.Events())
	assert.Empty(t, dispatches.Dispatches())
}

func TestSubmit_RejectsMissingEmail(t *testing.T) {
	flow := leadGenFlow(t)
	state := completedState()
	delete(state.Fields, "email")
	p, _, _ := newTestPipeline(t, memory.NewStore())

	_, err := p.Submit(context.Background(), flow, state, "k", SubmissionContext{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Stage)
}

func TestSubmit_RejectsMissingRequiredField(t *testing.T) {
	flow := leadGenFlow(t)
	state := completedState()
	state.Fields["name"] = "   "
	p, _, _ := newTestPipeline(t, memory.NewStore())

	_, err := p.Submit(context.Background(), flow, state, "k", SubmissionContext{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fields", verr.Stage)
	assert.Contains(t, verr.Message, "Name")
}

func TestSubmit_DuplicateWithinWindowShortCircuits(t *testing.T) {
	flow := leadGenFlow(t)
	leads := memory.NewStore()
	p, progress, dispatches := newTestPipeline(t, leads)

	first, err := p.Submit(context.Background(), flow, completedState(), "k1", SubmissionContext{})
	require.NoError(t, err)
	require.NotNil(t, first.Lead)

	key := "lead-gen:sess-2"
	second := completedState()
	require.NoError(t, progress.Save(context.Background(), key, second))

	res, err := p.Submit(context.Background(), flow, second, key, SubmissionContext{})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Lead)
	assert.Equal(t, first.RedirectURL, res.RedirectURL)

	// Only the first submission produced records; the duplicate still
	// clears its own progress.
	assert.Len(t, leads.Events(), 1)
	assert.Len(t, dispatches.Dispatches(), 1)
	_, err = progress.Load(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSubmit_DedupIsCaseInsensitiveOnEmail(t *testing.T) {
	flow := leadGenFlow(t)
	p, _, _ := newTestPipeline(t, memory.NewStore())

	_, err := p.Submit(context.Background(), flow, completedState(), "k1", SubmissionContext{})
	require.NoError(t, err)

	second := completedState()
	second.Fields["email"] = "  ANA@Example.com "
	res, err := p.Submit(context.Background(), flow, second, "k2", SubmissionContext{})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestSubmit_ExpiredWindowAcceptsAgain(t *testing.T) {
	flow := leadGenFlow(t)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, _, _ := newTestPipeline(t, memory.NewStore(),
		WithClock(func() time.Time { return clock }))

	_, err := p.Submit(context.Background(), flow, completedState(), "k1", SubmissionContext{})
	require.NoError(t, err)

	clock = clock.Add(6 * time.Minute)
	res, err := p.Submit(context.Background(), flow, completedState(), "k2", SubmissionContext{})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Lead)
}

func TestSubmit_DedupQueryErrorFailsOpen(t *testing.T) {
	flow := leadGenFlow(t)
	leads := &flakyLeads{Store: memory.NewStore(), recentErr: errors.New("db down")}
	p, _, _ := newTestPipeline(t, leads)

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Lead)
}

func TestSubmit_InsertRetriesOnce(t *testing.T) {
	flow := leadGenFlow(t)
	leads := &flakyLeads{Store: memory.NewStore(), insertFailures: 1}
	p, _, _ := newTestPipeline(t, leads)

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)
	assert.False(t, res.Lead.InsertFailed)

	_, err = leads.GetLead(context.Background(), res.Lead.ID)
	assert.NoError(t, err)
}

func TestSubmit_InsertFailureFlagsAndContinues(t *testing.T) {
	flow := leadGenFlow(t)
	leads := &flakyLeads{Store: memory.NewStore(), insertFailures: 2}
	p, _, dispatches := newTestPipeline(t, leads)

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)
	assert.True(t, res.Lead.InsertFailed)

	// The best-effort stages still ran.
	assert.Len(t, leads.Events(), 1)
	assert.Len(t, dispatches.Dispatches(), 1)
}

func TestSubmit_BestEffortFailuresDoNotAbort(t *testing.T) {
	flow := leadGenFlow(t)
	leads := &flakyLeads{Store: memory.NewStore(), eventErr: errors.New("mirror down")}
	mailer := &recordingMailer{err: errors.New("smtp down")}
	p, _, _ := newTestPipeline(t, leads, WithMailer(mailer))

	res, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)
	require.NotNil(t, res.Lead)
	assert.False(t, res.Duplicate)
}

func TestSubmit_NoWebhookSkipsQueue(t *testing.T) {
	flow := leadGenFlow(t)
	flow.WebhookURL = ""
	p, _, dispatches := newTestPipeline(t, memory.NewStore())

	_, err := p.Submit(context.Background(), flow, completedState(), "k", SubmissionContext{})
	require.NoError(t, err)
	assert.Empty(t, dispatches.Dispatches())
}

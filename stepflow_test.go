package stepflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/stepflow"
	"github.com/stepflow-dev/stepflow/internal/pipeline"
	"github.com/stepflow-dev/stepflow/internal/runtime"
	"github.com/stepflow-dev/stepflow/pkg/adapters/memory"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/dsl"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

func qualifierFlow(t *testing.T) *domain.Flow {
	t.Helper()
	flow, err := dsl.New("f1", "lead-gen").
		Question("urgency", "How soon do you need this?",
			dsl.Opt("Urgent, this month"),
			dsl.Opt("In a few weeks"),
			dsl.OptTo("Just researching", "https://partner.example.com"),
		).
		Form("contact", "How can we reach you?",
			dsl.Field("email", "email", true),
		).
		OptionEdge("urgency", 0, "contact").
		OptionEdge("urgency", 1, "contact").
		Webhook("https://hooks.example.com/leads").
		Redirect("/obrigado").
		Build()
	require.NoError(t, err)
	return flow
}

func newEngine(t *testing.T, opts ...stepflow.Option) *stepflow.Engine {
	t.Helper()
	engine, err := stepflow.New(map[string]*domain.Flow{"lead-gen": qualifierFlow(t)}, opts...)
	require.NoError(t, err)
	return engine
}

func TestEngine_RequiresFlows(t *testing.T) {
	_, err := stepflow.New(nil)
	assert.Error(t, err)
}

func TestEngine_UnknownSlug(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	_, err := engine.Current(ctx, "nope", "v1")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	_, err = engine.Advance(ctx, "nope", "v1", runtime.AdvanceRequest{})
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	_, err = engine.Retreat(ctx, "nope", "v1")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	_, err = engine.Submit(ctx, "nope", "v1", nil, pipeline.SubmissionContext{})
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestEngine_FullVisitorJourney(t *testing.T) {
	store := memory.NewStore()
	mailer := &captureMailer{}
	engine := newEngine(t,
		stepflow.WithProgressStore(store),
		stepflow.WithLeadStore(store),
		stepflow.WithDispatchStore(store),
		stepflow.WithMailer(mailer),
	)
	ctx := context.Background()

	view, err := engine.Current(ctx, "lead-gen", "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, "urgency", view.Step.ID)
	assert.Equal(t, 50, view.Progress)

	outcome, err := engine.Advance(ctx, "lead-gen", "visitor-1", runtime.AdvanceRequest{
		OptionText: "Urgent, this month",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.View)
	assert.Equal(t, "contact", outcome.View.Step.ID)
	assert.Equal(t, 100, outcome.View.Progress)

	result, err := engine.Submit(ctx, "lead-gen", "visitor-1",
		map[string]string{"email": "ana@example.com", "name": "Ana"},
		pipeline.SubmissionContext{PageURL: "https://example.com/lead-gen"})
	require.NoError(t, err)
	require.NotNil(t, result.Lead)
	assert.Equal(t, domain.UrgencyUrgent, result.Urgency)
	assert.Contains(t, result.RedirectURL, "urgencia=urgent")
	assert.Contains(t, result.RedirectURL, "nome=Ana")

	// Submission queued the webhook dispatch and sent the confirmation.
	require.Len(t, store.Dispatches(), 1)
	assert.Equal(t, result.Lead.ID, store.Dispatches()[0].LeadID)
	require.Len(t, mailer.sent, 1)

	// Progress was cleared: the next visit starts fresh.
	view, err = engine.Current(ctx, "lead-gen", "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, "urgency", view.Step.ID)
	assert.NotEqual(t, result.Lead.SessionID, view.State.SessionID)
}

func TestEngine_ExternalOptionIsTerminal(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	before, err := engine.Current(ctx, "lead-gen", "visitor-2")
	require.NoError(t, err)

	outcome, err := engine.Advance(ctx, "lead-gen", "visitor-2", runtime.AdvanceRequest{
		OptionText: "Just researching",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://partner.example.com", outcome.ExternalURL)
	assert.Nil(t, outcome.View)

	// The session did not move.
	after, err := engine.Current(ctx, "lead-gen", "visitor-2")
	require.NoError(t, err)
	assert.Equal(t, before.Step.ID, after.Step.ID)
	assert.Empty(t, after.State.Answers)
}

func TestEngine_SessionsAreIsolatedPerFormAndVisitor(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	_, err := engine.Advance(ctx, "lead-gen", "visitor-a", runtime.AdvanceRequest{
		OptionText: "Urgent, this month",
	})
	require.NoError(t, err)

	// A different visitor key still sits at the start.
	view, err := engine.Current(ctx, "lead-gen", "visitor-b")
	require.NoError(t, err)
	assert.Equal(t, "urgency", view.Step.ID)
}

func TestEngine_RetreatAfterAdvance(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	_, err := engine.Advance(ctx, "lead-gen", "v", runtime.AdvanceRequest{
		OptionText: "In a few weeks",
	})
	require.NoError(t, err)

	view, err := engine.Retreat(ctx, "lead-gen", "v")
	require.NoError(t, err)
	assert.Equal(t, "urgency", view.Step.ID)

	// Retreating at the start is a no-op.
	view, err = engine.Retreat(ctx, "lead-gen", "v")
	require.NoError(t, err)
	assert.Equal(t, "urgency", view.Step.ID)
}

func TestEngine_DuplicateSubmissionIsSilent(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	walk := func(visitor string) (*pipeline.Result, error) {
		_, err := engine.Advance(ctx, "lead-gen", visitor, runtime.AdvanceRequest{
			OptionText: "Urgent, this month",
		})
		require.NoError(t, err)
		return engine.Submit(ctx, "lead-gen", visitor,
			map[string]string{"email": "same@example.com"}, pipeline.SubmissionContext{})
	}

	first, err := walk("v1")
	require.NoError(t, err)
	require.NotNil(t, first.Lead)

	second, err := walk("v2")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Lead)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
}

type captureMailer struct {
	sent []ports.Email
}

func (m *captureMailer) Send(ctx context.Context, msg ports.Email) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestEngine_ClockDrivesDedupWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	engine := newEngine(t, stepflow.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	submit := func(visitor string) *pipeline.Result {
		_, err := engine.Advance(ctx, "lead-gen", visitor, runtime.AdvanceRequest{
			OptionText: "Urgent, this month",
		})
		require.NoError(t, err)
		res, err := engine.Submit(ctx, "lead-gen", visitor,
			map[string]string{"email": "same@example.com"}, pipeline.SubmissionContext{})
		require.NoError(t, err)
		return res
	}

	require.NotNil(t, submit("v1").Lead)

	now = now.Add(6 * time.Minute)
	res := submit("v2")
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Lead)
}

package stepflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatchq "github.com/stepflow-dev/stepflow/internal/dispatch"
	"github.com/stepflow-dev/stepflow/internal/logging"
	"github.com/stepflow-dev/stepflow/internal/metrics"
	"github.com/stepflow-dev/stepflow/internal/pipeline"
	"github.com/stepflow-dev/stepflow/internal/runtime"
	"github.com/stepflow-dev/stepflow/pkg/adapters/memory"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/ports"
	"github.com/stepflow-dev/stepflow/pkg/session"
)

// Version is the stepflow release version.
const Version = "0.4.0"

// Engine is the high-level entry point: it holds the registered flow
// snapshots and wires the navigation state machine, the submission
// pipeline, and the dispatch queue onto the configured stores.
type Engine struct {
	flows      map[string]*domain.Flow
	navigators map[string]*runtime.Navigator

	progress   ports.ProgressStore
	leads      ports.LeadStore
	dispatches ports.DispatchStore
	mailer     ports.Mailer
	scheduler  ports.WakeScheduler
	waker      ports.DispatcherWaker

	sessions *session.Manager
	pipeline *pipeline.Pipeline
	queue    *dispatchq.Queue
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithProgressStore replaces the default in-memory progress store.
func WithProgressStore(s ports.ProgressStore) Option {
	return func(e *Engine) { e.progress = s }
}

// WithLeadStore replaces the default in-memory lead store.
func WithLeadStore(s ports.LeadStore) Option {
	return func(e *Engine) { e.leads = s }
}

// WithDispatchStore replaces the default in-memory dispatch store.
func WithDispatchStore(s ports.DispatchStore) Option {
	return func(e *Engine) { e.dispatches = s }
}

// WithMailer sets the confirmation email collaborator.
func WithMailer(m ports.Mailer) Option {
	return func(e *Engine) { e.mailer = m }
}

// WithWaker sets the dispatcher wake-up collaborator.
func WithWaker(w ports.DispatcherWaker) Option {
	return func(e *Engine) { e.waker = w }
}

// WithScheduler overrides the wake-up scheduler.
func WithScheduler(s ports.WakeScheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given flow snapshots. Without store
// options everything runs on a shared in-memory store.
func New(flows map[string]*domain.Flow, opts ...Option) (*Engine, error) {
	if len(flows) == 0 {
		return nil, fmt.Errorf("at least one flow is required")
	}

	e := &Engine{
		flows:     flows,
		sessions:  session.NewManager(),
		scheduler: ports.TimerScheduler{},
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.progress == nil || e.leads == nil || e.dispatches == nil {
		mem := memory.NewStore()
		if e.progress == nil {
			e.progress = mem
		}
		if e.leads == nil {
			e.leads = mem
		}
		if e.dispatches == nil {
			e.dispatches = mem
		}
	}

	queueOpts := []dispatchq.Option{
		dispatchq.WithScheduler(e.scheduler),
		dispatchq.WithLogger(e.logger),
		dispatchq.WithClock(e.now),
	}
	if e.waker != nil {
		queueOpts = append(queueOpts, dispatchq.WithWaker(e.waker))
	}
	e.queue = dispatchq.NewQueue(e.dispatches, queueOpts...)

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(e.logger),
		pipeline.WithMetrics(e.metrics),
		pipeline.WithClock(e.now),
	}
	if e.mailer != nil {
		pipeOpts = append(pipeOpts, pipeline.WithMailer(e.mailer))
	}
	e.pipeline = pipeline.New(e.leads, e.progress, e.queue, pipeOpts...)

	e.navigators = make(map[string]*runtime.Navigator, len(flows))
	for slug, flow := range flows {
		e.navigators[slug] = runtime.NewNavigator(flow, e.progress, runtime.WithLogger(e.logger))
	}
	return e, nil
}

// Flow returns the registered flow snapshot for a slug.
func (e *Engine) Flow(slug string) (*domain.Flow, bool) {
	f, ok := e.flows[slug]
	return f, ok
}

// StepView is the render model of the visitor's current position.
type StepView struct {
	Step     *domain.Step
	State    *domain.NavigationState
	Progress int
}

// progressKey scopes persisted state per form slug and visitor session.
func progressKey(slug, sessionKey string) string {
	return slug + ":" + sessionKey
}

// Current resumes (or starts) a session and returns the step to render.
func (e *Engine) Current(ctx context.Context, slug, sessionKey string) (*StepView, error) {
	nav, ok := e.navigators[slug]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}

	var view *StepView
	err := e.sessions.WithLock(ctx, progressKey(slug, sessionKey), func(ctx context.Context) error {
		state, err := nav.Resume(ctx, progressKey(slug, sessionKey))
		if err != nil {
			return err
		}
		view = e.view(slug, nav, state)
		return nil
	})
	return view, err
}

// AdvanceOutcome is the result of a forward transition at the facade
// level: either a new step view or an external redirect.
type AdvanceOutcome struct {
	View        *StepView
	ExternalURL string
}

// Advance performs a forward transition for the session. Rejections wrap
// domain.ErrNoNextStep or domain.ErrStepNotFound.
func (e *Engine) Advance(ctx context.Context, slug, sessionKey string, req runtime.AdvanceRequest) (*AdvanceOutcome, error) {
	nav, ok := e.navigators[slug]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}

	var outcome *AdvanceOutcome
	err := e.sessions.WithLock(ctx, progressKey(slug, sessionKey), func(ctx context.Context) error {
		key := progressKey(slug, sessionKey)
		state, err := nav.Resume(ctx, key)
		if err != nil {
			return err
		}

		res, err := nav.Advance(ctx, key, state, req)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNoNextStep):
				e.metrics.Rejection(slug, "no_next_step")
			case errors.Is(err, domain.ErrStepNotFound):
				e.metrics.Rejection(slug, "step_not_found")
			}
			return err
		}
		if res.ExternalURL != "" {
			outcome = &AdvanceOutcome{ExternalURL: res.ExternalURL}
			return nil
		}
		e.metrics.StepVisit(slug, res.State.CurrentStepID)
		outcome = &AdvanceOutcome{View: e.view(slug, nav, res.State)}
		return nil
	})
	return outcome, err
}

// Retreat pops the session's back-stack.
func (e *Engine) Retreat(ctx context.Context, slug, sessionKey string) (*StepView, error) {
	nav, ok := e.navigators[slug]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}

	var view *StepView
	err := e.sessions.WithLock(ctx, progressKey(slug, sessionKey), func(ctx context.Context) error {
		key := progressKey(slug, sessionKey)
		state, err := nav.Resume(ctx, key)
		if err != nil {
			return err
		}
		view = e.view(slug, nav, nav.Retreat(ctx, key, state))
		return nil
	})
	return view, err
}

// Submit completes the session: free-form fields are merged into the
// state and the submission pipeline runs. Validation failures return a
// *pipeline.ValidationError.
func (e *Engine) Submit(ctx context.Context, slug, sessionKey string, fields map[string]string, meta pipeline.SubmissionContext) (*pipeline.Result, error) {
	nav, ok := e.navigators[slug]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	flow := e.flows[slug]

	var result *pipeline.Result
	err := e.sessions.WithLock(ctx, progressKey(slug, sessionKey), func(ctx context.Context) error {
		key := progressKey(slug, sessionKey)
		state, err := nav.Resume(ctx, key)
		if err != nil {
			return err
		}
		for k, v := range fields {
			state.Fields[k] = v
		}

		result, err = e.pipeline.Submit(ctx, flow, state, key, meta)
		return err
	})
	return result, err
}

func (e *Engine) view(slug string, nav *runtime.Navigator, state *domain.NavigationState) *StepView {
	step, _ := e.flows[slug].Step(state.CurrentStepID)
	return &StepView{
		Step:     step,
		State:    state,
		Progress: nav.Progress(state),
	}
}

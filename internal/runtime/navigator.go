package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stepflow-dev/stepflow/internal/logging"
	"github.com/stepflow-dev/stepflow/pkg/domain"
	"github.com/stepflow-dev/stepflow/pkg/ports"
)

// ActionExternalURL forces the transition target to be treated as an
// external navigation regardless of its shape.
const ActionExternalURL = "external_url"

// AdvanceRequest carries the inputs of a forward transition.
type AdvanceRequest struct {
	// Target is a node-local override (e.g. an option's own nextStep).
	// When set it wins over graph resolution.
	Target string

	// ActionKind, when set to ActionExternalURL, short-circuits to an
	// external navigation.
	ActionKind string

	// OptionText is the chosen option of a question step, matched by text.
	OptionText string

	// Fields are free-form values collected on the current step, merged
	// into the state when the transition is accepted.
	Fields map[string]string
}

// AdvanceResult is the outcome of an accepted transition.
type AdvanceResult struct {
	// State is the post-transition navigation state. For an external
	// navigation it is the unchanged input state.
	State *domain.NavigationState

	// ExternalURL is non-empty when the transition resolved to an
	// absolute URL: the host should open it and treat this session
	// branch as terminal.
	ExternalURL string

	// Progress is the visited/reachable percentage, clamped to 100.
	Progress int
}

// Navigator is the navigation state machine for one flow snapshot. It
// resolves transitions against the graph and persists state through the
// injected ProgressStore after every accepted transition.
type Navigator struct {
	flow      *domain.Flow
	store     ports.ProgressStore
	logger    *slog.Logger
	reachable int
}

// Option configures the Navigator.
type Option func(*Navigator)

// WithLogger configures a logger for authoring-defect notices.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Navigator) {
		n.logger = logger
	}
}

// NewNavigator creates a navigator over an immutable flow snapshot.
func NewNavigator(flow *domain.Flow, store ports.ProgressStore, opts ...Option) *Navigator {
	n := &Navigator{
		flow:      flow,
		store:     store,
		logger:    logging.NewNop(),
		reachable: ReachableStepCount(flow),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Resume restores persisted progress for the key. A fresh state at the
// inferred start step is returned when nothing is stored, or when the
// stored current step no longer exists in the (possibly edited) graph.
func (n *Navigator) Resume(ctx context.Context, key string) (*domain.NavigationState, error) {
	state, err := n.store.Load(ctx, key)
	switch {
	case err == nil && n.flow.HasStep(state.CurrentStepID):
		return state, nil
	case err == nil:
		n.logger.Debug("stored step no longer exists, restarting",
			"form", n.flow.Slug, "step", state.CurrentStepID)
	case err != domain.ErrSessionNotFound:
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	state = domain.NewState(n.flow.StartStepID())
	n.persist(ctx, key, state)
	return state, nil
}

// Advance performs a forward transition. On rejection the returned error
// wraps domain.ErrNoNextStep or domain.ErrStepNotFound and the input
// state is left untouched.
func (n *Navigator) Advance(ctx context.Context, key string, state *domain.NavigationState, req AdvanceRequest) (*AdvanceResult, error) {
	target := n.resolveTarget(state, req)

	if req.ActionKind == ActionExternalURL || domain.IsExternalTarget(target) {
		if target == "" {
			return nil, fmt.Errorf("external action on step %q: %w", state.CurrentStepID, domain.ErrNoNextStep)
		}
		// External navigation is terminal for this session branch and
		// must not mutate state.
		return &AdvanceResult{State: state, ExternalURL: target, Progress: n.Progress(state)}, nil
	}

	if target == "" {
		return nil, fmt.Errorf("step %q: %w", state.CurrentStepID, domain.ErrNoNextStep)
	}
	if !n.flow.HasStep(target) {
		// Broken graph: an edge or option points at a step that was
		// removed or never existed. Surface distinctly and log for the
		// form owner.
		n.logger.Warn("transition target does not exist",
			"form", n.flow.Slug, "step", state.CurrentStepID, "target", target)
		return nil, fmt.Errorf("step %q -> %q: %w", state.CurrentStepID, target, domain.ErrStepNotFound)
	}

	// Apply on a clone so a persist error cannot leave a half-applied state.
	next := state.Clone()
	if step, ok := n.flow.Step(next.CurrentStepID); ok && step.Type == domain.StepQuestion && req.OptionText != "" {
		next.Answers[next.CurrentStepID] = req.OptionText
	}
	for k, v := range req.Fields {
		next.Fields[k] = v
	}
	// A self-loop edge keeps the visitor in place. Recording it would
	// leave the history ending at the current step, turning back into a
	// no-op loop.
	if target != next.CurrentStepID {
		next.History = append(next.History, next.CurrentStepID)
		next.CurrentStepID = target
		next.MarkVisited(target)
	}

	n.persist(ctx, key, next)
	return &AdvanceResult{State: next, Progress: n.Progress(next)}, nil
}

// resolveTarget applies the resolution order: explicit override, the
// selected option's own nextStep, the edge bound to that option, then
// the step's default edge.
func (n *Navigator) resolveTarget(state *domain.NavigationState, req AdvanceRequest) string {
	if req.Target != "" {
		return req.Target
	}

	step, ok := n.flow.Step(state.CurrentStepID)
	if !ok {
		return ""
	}

	if step.Type == domain.StepQuestion && req.OptionText != "" {
		if i := step.OptionIndex(req.OptionText); i >= 0 {
			if step.Options[i].NextStep != "" {
				return step.Options[i].NextStep
			}
			if e, ok := n.flow.OptionEdge(step.ID, i); ok {
				return e.Target
			}
		}
	}

	if e, ok := n.flow.DefaultEdge(step.ID); ok {
		return e.Target
	}
	return ""
}

// Retreat pops the back-stack. No-op when the history is empty (the
// visitor is already at the start). Visited is never shrunk.
func (n *Navigator) Retreat(ctx context.Context, key string, state *domain.NavigationState) *domain.NavigationState {
	if len(state.History) == 0 {
		return state
	}
	next := state.Clone()
	next.CurrentStepID = next.History[len(next.History)-1]
	next.History = next.History[:len(next.History)-1]

	n.persist(ctx, key, next)
	return next
}

// Progress returns the completion percentage for the state: visited over
// reachable, clamped to 100 (option-bound edges can let a visitor reach
// steps the BFS under-counted).
func (n *Navigator) Progress(state *domain.NavigationState) int {
	if n.reachable == 0 {
		return 0
	}
	pct := len(state.Visited) * 100 / n.reachable
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ClearProgress drops persisted state for the key, called after a
// successful submission.
func (n *Navigator) ClearProgress(ctx context.Context, key string) error {
	return n.store.Clear(ctx, key)
}

// persist saves state best-effort. A failed save only costs the visitor
// resume-after-reload, so it is logged and the transition stands.
func (n *Navigator) persist(ctx context.Context, key string, state *domain.NavigationState) {
	if err := n.store.Save(ctx, key, state); err != nil {
		n.logger.Warn("failed to persist progress", "form", n.flow.Slug, "key", key, "err", err)
	}
}

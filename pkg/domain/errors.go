package domain

import "errors"

// ErrSessionNotFound is returned when no persisted progress exists for a key.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoNextStep is returned when a transition resolves to nothing: the
// current step has no matching edge and no explicit target. Recoverable,
// user-visible.
var ErrNoNextStep = errors.New("no next step configured")

// ErrStepNotFound is returned when a transition resolves to an id that is
// neither an authored step nor an absolute URL. Indicates a broken graph
// and should be logged for the form owner.
var ErrStepNotFound = errors.New("step not found")

// ErrLeadNotFound is returned when a lead id cannot be found in the store.
var ErrLeadNotFound = errors.New("lead not found")

// ErrFlowNotFound is returned when no flow is registered under a slug.
var ErrFlowNotFound = errors.New("flow not found")

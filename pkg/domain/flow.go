package domain

import (
	"fmt"
	"strings"
)

// Flow is an immutable snapshot of an authored form: the ordered steps,
// the edge set, and the form-level settings the runtime needs. A Flow is
// loaded once per visitor session; admin edits produce a new snapshot
// and never mutate one already in use.
type Flow struct {
	ID          string `json:"id" yaml:"id"`
	Slug        string `json:"slug" yaml:"slug"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty" yaml:"redirectUrl,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`
	Edges []Edge `json:"edges" yaml:"edges"`

	index map[string]int // step id -> position in Steps
}

// NewFlow builds a Flow snapshot and its id index. It fails on duplicate
// step ids or more than one default edge per source step; dangling edge
// targets are allowed here (they are external exits or authoring defects
// reported by the validator).
func NewFlow(id, slug string, steps []Step, edges []Edge) (*Flow, error) {
	f := &Flow{ID: id, Slug: slug, Steps: steps, Edges: edges}
	if err := f.Reindex(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reindex rebuilds the id index and re-checks structural invariants.
// Call after unmarshaling a Flow directly.
func (f *Flow) Reindex() error {
	f.index = make(map[string]int, len(f.Steps))
	for i, s := range f.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d has empty id", i)
		}
		if _, dup := f.index[s.ID]; dup {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		f.index[s.ID] = i
	}

	defaults := make(map[string]bool)
	for _, e := range f.Edges {
		if !e.IsDefault() {
			continue
		}
		if defaults[e.Source] {
			return fmt.Errorf("step %q has more than one default edge", e.Source)
		}
		defaults[e.Source] = true
	}
	return nil
}

// Step returns the step with the given id.
func (f *Flow) Step(id string) (*Step, bool) {
	i, ok := f.index[id]
	if !ok {
		return nil, false
	}
	return &f.Steps[i], true
}

// HasStep reports whether the id names an authored step.
func (f *Flow) HasStep(id string) bool {
	_, ok := f.index[id]
	return ok
}

// DefaultEdge returns the handle-less edge leaving the given step.
func (f *Flow) DefaultEdge(source string) (Edge, bool) {
	for _, e := range f.Edges {
		if e.Source == source && e.IsDefault() {
			return e, true
		}
	}
	return Edge{}, false
}

// OptionEdge returns the edge bound to option optIdx of the given step.
func (f *Flow) OptionEdge(source string, optIdx int) (Edge, bool) {
	for _, e := range f.Edges {
		if e.Source != source {
			continue
		}
		if i, ok := e.OptionIndex(); ok && i == optIdx {
			return e, true
		}
	}
	return Edge{}, false
}

// StartStep infers the entry step: the first authored step that never
// appears as an edge target. The second return is false when no such
// step exists (every step is targeted, e.g. a fully cycled graph), so
// callers can tell a real inference from a fallback.
func (f *Flow) StartStep() (string, bool) {
	if len(f.Steps) == 0 {
		return "", false
	}
	if len(f.Edges) == 0 {
		return f.Steps[0].ID, true
	}
	targeted := make(map[string]bool, len(f.Edges))
	for _, e := range f.Edges {
		targeted[e.Target] = true
	}
	for _, s := range f.Steps {
		if !targeted[s.ID] {
			return s.ID, true
		}
	}
	return "", false
}

// StartStepID is StartStep with the navigation fallback applied: a graph
// with no zero-in-degree step still has to render somewhere, so the
// first authored step wins.
func (f *Flow) StartStepID() string {
	if id, ok := f.StartStep(); ok {
		return id
	}
	if len(f.Steps) == 0 {
		return ""
	}
	return f.Steps[0].ID
}

// IsExternalTarget reports whether a resolved navigation target is an
// absolute URL rather than a step id.
func IsExternalTarget(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

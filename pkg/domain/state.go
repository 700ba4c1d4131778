package domain

import "github.com/google/uuid"

// NavigationState is the per-visitor snapshot of an in-progress form.
// It is serialized after every transition so a returning visitor can
// resume where they left off.
type NavigationState struct {
	// SessionID identifies the visitor session across resume and submit.
	SessionID string `json:"sessionId"`

	// CurrentStepID is the id of the step being displayed.
	CurrentStepID string `json:"currentStepId"`

	// Answers maps a question step id to the chosen option text.
	Answers map[string]string `json:"answers"`

	// Fields holds free-form field values keyed by field name.
	Fields map[string]string `json:"freeFormFields"`

	// History is the back-stack: steps already left behind, oldest first.
	// It never contains CurrentStepID as its last element.
	History []string `json:"history"`

	// Visited lists every step entered this session, in first-visit
	// order. It only grows; retreating does not unvisit.
	Visited []string `json:"visited"`
}

// NewState creates a fresh state positioned at the given step.
func NewState(startStepID string) *NavigationState {
	return &NavigationState{
		SessionID:     uuid.NewString(),
		CurrentStepID: startStepID,
		Answers:       make(map[string]string),
		Fields:        make(map[string]string),
		Visited:       []string{startStepID},
	}
}

// HasVisited reports whether the step was entered this session.
func (s *NavigationState) HasVisited(stepID string) bool {
	for _, id := range s.Visited {
		if id == stepID {
			return true
		}
	}
	return false
}

// MarkVisited records a first visit to the step. Idempotent.
func (s *NavigationState) MarkVisited(stepID string) {
	if !s.HasVisited(stepID) {
		s.Visited = append(s.Visited, stepID)
	}
}

// Clone returns a deep copy, so a transition can be applied
// all-or-nothing and discarded on rejection.
func (s *NavigationState) Clone() *NavigationState {
	next := *s
	next.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		next.Answers[k] = v
	}
	next.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		next.Fields[k] = v
	}
	next.History = append([]string(nil), s.History...)
	next.Visited = append([]string(nil), s.Visited...)
	return &next
}

package domain

import "time"

// Contact holds the visitor identity extracted from answers and
// free-form fields via the alias table in the submission pipeline.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LeadRecord is the materialized result of a completed, non-duplicate
// submission. It is created once and never mutated afterwards, except
// by the external dispatcher marking delivery status.
type LeadRecord struct {
	ID       string `json:"id"`
	FormID   string `json:"formId"`
	FormSlug string `json:"formSlug"`

	// Answers keyed by step id, Responses keyed by step title.
	Answers   map[string]string `json:"answers"`
	Fields    map[string]string `json:"freeFormFields"`
	Responses map[string]string `json:"responses"`

	Contact Contact `json:"contact"`

	UTM       map[string]string `json:"utm,omitempty"`
	PageURL   string            `json:"pageUrl,omitempty"`
	Referrer  string            `json:"referrer,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`

	SessionID     string    `json:"sessionId"`
	CompletionPct int       `json:"completionPercentage"`
	SubmittedAt   time.Time `json:"submittedAt"`

	// InsertFailed marks a lead whose primary insert failed twice; the
	// payload still flows through the best-effort stages so operators
	// can recover it from the secondary event stream.
	InsertFailed bool `json:"insertFailed,omitempty"`
}

// ConversionEvent is the lightweight secondary mirror of a lead, written
// best-effort so a failed primary insert still leaves a trace.
type ConversionEvent struct {
	ID            string    `json:"id"`
	LeadID        string    `json:"leadId"`
	FormSlug      string    `json:"formSlug"`
	Email         string    `json:"email,omitempty"`
	CompletionPct int       `json:"completionPercentage"`
	CreatedAt     time.Time `json:"createdAt"`
}

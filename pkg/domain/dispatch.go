package domain

import (
	"encoding/json"
	"time"
)

// DispatchStatus tracks the lifecycle of a queued webhook call.
type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

// UrgencyClass is the coarse tier inferred from a visitor's free-text
// urgency answer. It controls how long a queued dispatch is delayed.
type UrgencyClass string

const (
	// UrgencyUrgent: the visitor wants contact as soon as possible.
	UrgencyUrgent UrgencyClass = "urgent"
	// UrgencyDefault: no urgency signal found.
	UrgencyDefault UrgencyClass = "default"
	// UrgencyMedium: a timeline measured in weeks.
	UrgencyMedium UrgencyClass = "medium"
	// UrgencyLow: still researching, slowest tier.
	UrgencyLow UrgencyClass = "low"
)

// Delay returns the dispatch delay for the tier. Tiers are strictly
// ordered: urgent < default < medium < low.
func (u UrgencyClass) Delay() time.Duration {
	switch u {
	case UrgencyUrgent:
		return 1 * time.Minute
	case UrgencyMedium:
		return 30 * time.Minute
	case UrgencyLow:
		return 60 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// QueuedDispatch is a scheduled, not-yet-delivered webhook call. The
// pipeline creates it with status pending; only the external dispatcher
// moves it to sent or failed.
type QueuedDispatch struct {
	ID        string          `json:"id"`
	LeadID    string          `json:"leadId"`
	TargetURL string          `json:"targetUrl"`
	Payload   json.RawMessage `json:"payload"`
	Urgency   UrgencyClass    `json:"urgencyClass"`
	SendAt    time.Time       `json:"sendAt"`
	Status    DispatchStatus  `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

package ports

import (
	"context"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/domain"
)

// ProgressStore persists in-progress navigation state so a returning
// visitor can resume a form. Keys are scoped per form slug and visitor
// session by the caller; the store treats them as opaque.
type ProgressStore interface {
	// Save persists the state under the key.
	Save(ctx context.Context, key string, state *domain.NavigationState) error

	// Load retrieves the state for the key.
	// Returns domain.ErrSessionNotFound if nothing is stored.
	Load(ctx context.Context, key string) (*domain.NavigationState, error)

	// Clear removes the state for the key. Clearing an absent key is not
	// an error.
	Clear(ctx context.Context, key string) error
}

// LeadStore is the keyed-record store consumed by the submission
// pipeline: keyed insert, keyed update, filtered query-with-limit, and
// single-row fetch.
type LeadStore interface {
	// InsertLead persists a new lead record.
	InsertLead(ctx context.Context, lead *domain.LeadRecord) error

	// UpdateLead applies a partial update to an existing lead.
	// Returns domain.ErrLeadNotFound if the id is unknown.
	UpdateLead(ctx context.Context, id string, fields map[string]any) error

	// GetLead fetches a single lead by id.
	// Returns domain.ErrLeadNotFound if the id is unknown.
	GetLead(ctx context.Context, id string) (*domain.LeadRecord, error)

	// RecentLeads returns leads for the form submitted at or after since,
	// newest first, capped at limit. Used by the dedup window.
	RecentLeads(ctx context.Context, formSlug string, since time.Time, limit int) ([]domain.LeadRecord, error)

	// InsertEvent writes the lightweight conversion-event mirror.
	InsertEvent(ctx context.Context, ev *domain.ConversionEvent) error
}

// DispatchStore persists queued webhook dispatches. The pipeline only
// inserts; the external dispatcher scans due rows and marks status.
type DispatchStore interface {
	// InsertDispatch persists a pending dispatch.
	InsertDispatch(ctx context.Context, d *domain.QueuedDispatch) error

	// DueDispatches returns pending dispatches whose SendAt is at or
	// before the given time, oldest first, capped at limit.
	DueDispatches(ctx context.Context, now time.Time, limit int) ([]domain.QueuedDispatch, error)

	// MarkDispatch transitions a dispatch to sent or failed.
	MarkDispatch(ctx context.Context, id string, status domain.DispatchStatus) error
}

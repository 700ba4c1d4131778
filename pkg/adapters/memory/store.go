// Package memory provides in-memory implementations of the stepflow
// stores, used in tests and for embedding the runtime without external
// infrastructure.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stepflow-dev/stepflow/pkg/domain"
)

// Store implements ports.ProgressStore, ports.LeadStore and
// ports.DispatchStore in memory. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	progress   map[string]*domain.NavigationState
	leads      map[string]*domain.LeadRecord
	events     []domain.ConversionEvent
	dispatches map[string]*domain.QueuedDispatch
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		progress:   make(map[string]*domain.NavigationState),
		leads:      make(map[string]*domain.LeadRecord),
		dispatches: make(map[string]*domain.QueuedDispatch),
	}
}

// Save persists navigation state. The state is deep-copied so later
// caller mutations cannot leak into the store.
func (s *Store) Save(ctx context.Context, key string, state *domain.NavigationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[key] = state.Clone()
	return nil
}

// Load retrieves navigation state, copied on read.
func (s *Store) Load(ctx context.Context, key string) (*domain.NavigationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.progress[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Clone(), nil
}

// Clear removes navigation state.
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, key)
	return nil
}

// InsertLead persists a lead record.
func (s *Store) InsertLead(ctx context.Context, lead *domain.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lead
	s.leads[lead.ID] = &copied
	return nil
}

// UpdateLead applies a partial update. Only the fields the runtime
// actually updates are recognized.
func (s *Store) UpdateLead(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return domain.ErrLeadNotFound
	}
	for k, v := range fields {
		switch k {
		case "insertFailed":
			if b, ok := v.(bool); ok {
				lead.InsertFailed = b
			}
		}
	}
	return nil
}

// GetLead fetches a lead by id.
func (s *Store) GetLead(ctx context.Context, id string) (*domain.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	copied := *lead
	return &copied, nil
}

// RecentLeads returns leads for the form submitted at or after since,
// newest first.
func (s *Store) RecentLeads(ctx context.Context, formSlug string, since time.Time, limit int) ([]domain.LeadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LeadRecord
	for _, lead := range s.leads {
		if lead.FormSlug != formSlug || lead.SubmittedAt.Before(since) {
			continue
		}
		out = append(out, *lead)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertEvent appends a conversion event.
func (s *Store) InsertEvent(ctx context.Context, ev *domain.ConversionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

// Events returns a copy of all recorded conversion events.
func (s *Store) Events() []domain.ConversionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ConversionEvent(nil), s.events...)
}

// InsertDispatch persists a queued dispatch.
func (s *Store) InsertDispatch(ctx context.Context, d *domain.QueuedDispatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *d
	s.dispatches[d.ID] = &copied
	return nil
}

// DueDispatches returns pending dispatches due at or before now, oldest first.
func (s *Store) DueDispatches(ctx context.Context, now time.Time, limit int) ([]domain.QueuedDispatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.QueuedDispatch
	for _, d := range s.dispatches {
		if d.Status != domain.DispatchPending || d.SendAt.After(now) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SendAt.Before(out[j].SendAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkDispatch transitions a dispatch's status.
func (s *Store) MarkDispatch(ctx context.Context, id string, status domain.DispatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dispatches[id]
	if !ok {
		return domain.ErrLeadNotFound
	}
	d.Status = status
	return nil
}

// Dispatches returns a copy of every queued dispatch, for tests.
func (s *Store) Dispatches() []domain.QueuedDispatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QueuedDispatch, 0, len(s.dispatches))
	for _, d := range s.dispatches {
		out = append(out, *d)
	}
	return out
}

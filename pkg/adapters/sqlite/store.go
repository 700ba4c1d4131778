// Package sqlite implements the lead and dispatch stores on SQLite.
// Uses WAL mode for concurrent read access.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stepflow-dev/stepflow/pkg/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store implements ports.LeadStore and ports.DispatchStore on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and applies
// the schema. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent submissions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// InsertLead persists a lead record.
func (s *Store) InsertLead(ctx context.Context, lead *domain.LeadRecord) error {
	answers, err := marshalMap(lead.Answers)
	if err != nil {
		return err
	}
	fields, err := marshalMap(lead.Fields)
	if err != nil {
		return err
	}
	responses, err := marshalMap(lead.Responses)
	if err != nil {
		return err
	}
	utm, err := marshalMap(lead.UTM)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (
			id, form_id, form_slug, email, name, phone, session_id,
			completion_pct, page_url, referrer, user_agent,
			answers_json, fields_json, responses_json, utm_json,
			insert_failed, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.FormID, lead.FormSlug,
		lead.Contact.Email, lead.Contact.Name, lead.Contact.Phone,
		lead.SessionID, lead.CompletionPct,
		lead.PageURL, lead.Referrer, lead.UserAgent,
		answers, fields, responses, utm,
		boolToInt(lead.InsertFailed), lead.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

// UpdateLead applies a partial update to a lead row.
func (s *Store) UpdateLead(ctx context.Context, id string, fields map[string]any) error {
	for k, v := range fields {
		var column string
		switch k {
		case "insertFailed":
			column = "insert_failed"
			if b, ok := v.(bool); ok {
				v = boolToInt(b)
			}
		case "email":
			column = "email"
		case "name":
			column = "name"
		case "phone":
			column = "phone"
		default:
			return fmt.Errorf("unknown lead field %q", k)
		}
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE leads SET %s = ? WHERE id = ?", column), v, id)
		if err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrLeadNotFound
		}
	}
	return nil
}

// GetLead fetches a single lead by id.
func (s *Store) GetLead(ctx context.Context, id string) (*domain.LeadRecord, error) {
	row := s.db.QueryRowContext(ctx, leadSelect+" WHERE id = ?", id)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead: %w", err)
	}
	return lead, nil
}

// RecentLeads returns leads for the form submitted at or after since,
// newest first, capped at limit.
func (s *Store) RecentLeads(ctx context.Context, formSlug string, since time.Time, limit int) ([]domain.LeadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		leadSelect+` WHERE form_slug = ? AND submitted_at >= ?
		ORDER BY submitted_at DESC LIMIT ?`,
		formSlug, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent leads: %w", err)
	}
	defer rows.Close()

	var leads []domain.LeadRecord
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, *lead)
	}
	return leads, rows.Err()
}

// InsertEvent writes a conversion event row.
func (s *Store) InsertEvent(ctx context.Context, ev *domain.ConversionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversion_events (id, lead_id, form_slug, email, completion_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.LeadID, ev.FormSlug, ev.Email, ev.CompletionPct, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert conversion event: %w", err)
	}
	return nil
}

// InsertDispatch persists a pending dispatch.
func (s *Store) InsertDispatch(ctx context.Context, d *domain.QueuedDispatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_queue (id, lead_id, target_url, payload_json, urgency, send_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.LeadID, d.TargetURL, string(d.Payload), string(d.Urgency),
		d.SendAt.UTC(), string(d.Status), d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

// DueDispatches returns pending dispatches due at or before now, oldest first.
func (s *Store) DueDispatches(ctx context.Context, now time.Time, limit int) ([]domain.QueuedDispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, target_url, payload_json, urgency, send_at, status, created_at
		FROM dispatch_queue
		WHERE status = 'pending' AND send_at <= ?
		ORDER BY send_at ASC LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due dispatches: %w", err)
	}
	defer rows.Close()

	var out []domain.QueuedDispatch
	for rows.Next() {
		var d domain.QueuedDispatch
		var payload, urgency, status string
		if err := rows.Scan(&d.ID, &d.LeadID, &d.TargetURL, &payload, &urgency, &d.SendAt, &status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		d.Payload = json.RawMessage(payload)
		d.Urgency = domain.UrgencyClass(urgency)
		d.Status = domain.DispatchStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDispatch transitions a dispatch's status.
func (s *Store) MarkDispatch(ctx context.Context, id string, status domain.DispatchStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE dispatch_queue SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to mark dispatch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrLeadNotFound
	}
	return nil
}

const leadSelect = `
	SELECT id, form_id, form_slug, email, name, phone, session_id,
	       completion_pct, page_url, referrer, user_agent,
	       answers_json, fields_json, responses_json, utm_json,
	       insert_failed, submitted_at
	FROM leads`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*domain.LeadRecord, error) {
	var lead domain.LeadRecord
	var answers, fields, responses, utm string
	var insertFailed int

	err := row.Scan(
		&lead.ID, &lead.FormID, &lead.FormSlug,
		&lead.Contact.Email, &lead.Contact.Name, &lead.Contact.Phone,
		&lead.SessionID, &lead.CompletionPct,
		&lead.PageURL, &lead.Referrer, &lead.UserAgent,
		&answers, &fields, &responses, &utm,
		&insertFailed, &lead.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.InsertFailed = insertFailed != 0
	if lead.Answers, err = unmarshalMap(answers); err != nil {
		return nil, err
	}
	if lead.Fields, err = unmarshalMap(fields); err != nil {
		return nil, err
	}
	if lead.Responses, err = unmarshalMap(responses); err != nil {
		return nil, err
	}
	if lead.UTM, err = unmarshalMap(utm); err != nil {
		return nil, err
	}
	return &lead, nil
}

func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal map: %w", err)
	}
	return string(data), nil
}

func unmarshalMap(data string) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map: %w", err)
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

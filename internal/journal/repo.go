package journal

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS attendance_journal (
	id          TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	employee_id TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	state       TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	address     TEXT NOT NULL DEFAULT '',
	captured_at TIMESTAMPTZ,
	occurred_at TIMESTAMPTZ NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	receipt_id  TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS attendance_journal_employee_idx
	ON attendance_journal (employee_id, occurred_at DESC);
`

const selectColumns = `SELECT id, event_type, session_id, employee_id, action, state, latitude, longitude,
	address, captured_at, occurred_at, error, receipt_id, recorded_at FROM attendance_journal`

// Repository persists journal entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the journal table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Insert writes e; duplicate ids are ignored.
func (r *Repository) Insert(ctx context.Context, e Event) (bool, error) {
	var capturedAt sql.NullTime
	if !e.CapturedAt.IsZero() {
		capturedAt = sql.NullTime{Time: e.CapturedAt, Valid: true}
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_journal
			(id, event_type, session_id, employee_id, action, state, latitude, longitude, address, captured_at, occurred_at, error, receipt_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Type, e.SessionID, e.EmployeeID, e.Action, e.State, e.Latitude, e.Longitude,
		e.Address, capturedAt, e.OccurredAt, e.Error, e.ReceiptID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	f = f.normalize()
	query := selectColumns
	args := []any{}
	clauses := []string{}
	if f.EmployeeID != "" {
		args = append(args, f.EmployeeID)
		clauses = append(clauses, "employee_id = $"+strconv.Itoa(len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		clauses = append(clauses, "event_type = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var (
			e          Entry
			capturedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.SessionID, &e.EmployeeID, &e.Action, &e.State, &e.Latitude, &e.Longitude,
			&e.Address, &capturedAt, &e.OccurredAt, &e.Error, &e.ReceiptID, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.CapturedAt = capturedAt.Time
		res = append(res, e)
	}
	return res, rows.Err()
}

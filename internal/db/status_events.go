package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/workforce-signals/internal/store"
	"github.com/jonathan/workforce-signals/internal/types"
)

var _ store.Store = (*DB)(nil)

const statusEventColumns = `id, company_name, company_key, status_type, severity, affected_departments,
	employee_count_impact, start_date, end_date, description, verified, sources, version,
	created_at, updated_at`

// FindCandidates returns recent events sharing a company key and status type
func (db *DB) FindCandidates(ctx context.Context, companyKey string, statusType types.StatusType, since time.Time, limit int) ([]types.StatusEvent, error) {
	if limit <= 0 {
		limit = store.DefaultCandidateLimit
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+statusEventColumns+` FROM status_events
		 WHERE company_key = $1 AND status_type = $2 AND start_date >= $3
		 ORDER BY start_date DESC, created_at DESC
		 LIMIT $4`,
		companyKey, string(statusType), dateOnly(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	defer rows.Close()

	return scanStatusEvents(rows)
}

// Insert creates a new status event
func (db *DB) Insert(ctx context.Context, event *types.StatusEvent) error {
	if len(event.Sources) == 0 {
		return store.ErrEmptySources
	}

	now := db.now().UTC()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Version = 1

	sourcesJSON, err := json.Marshal(event.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO status_events (`+statusEventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		event.ID, event.CompanyName, event.CompanyKey, string(event.StatusType), string(event.Severity),
		departmentsOrEmpty(event.AffectedDepartments), event.EmployeeCountImpact,
		dateOnly(event.StartDate), optionalDate(event.EndDate),
		event.Description, event.Verified, sourcesJSON, event.Version,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert status event: %w", err)
	}
	return nil
}

// Update applies a version-checked patch inside a transaction
func (db *DB) Update(ctx context.Context, id uuid.UUID, patch store.Patch) (*types.StatusEvent, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanStatusEvent(tx.QueryRow(ctx,
		`SELECT `+statusEventColumns+` FROM status_events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get status event: %w", err)
	}
	if current.Version != patch.ExpectedVersion {
		return nil, store.ErrVersionConflict
	}
	if err := store.ValidatePatch(current, patch); err != nil {
		return nil, err
	}

	store.ApplyPatch(current, patch, db.now().UTC())

	sourcesJSON, err := json.Marshal(current.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sources: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE status_events
		 SET sources = $1, verified = $2, description = $3, employee_count_impact = $4,
		     version = version + 1, updated_at = $5
		 WHERE id = $6 AND version = $7`,
		sourcesJSON, current.Verified, current.Description, current.EmployeeCountImpact,
		current.UpdatedAt, id, patch.ExpectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update status event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return current, nil
}

// Get retrieves a status event by ID
func (db *DB) Get(ctx context.Context, id uuid.UUID) (*types.StatusEvent, error) {
	e, err := scanStatusEvent(db.pool.QueryRow(ctx,
		`SELECT `+statusEventColumns+` FROM status_events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get status event: %w", err)
	}
	return e, nil
}

// List retrieves status events with optional filters
func (db *DB) List(ctx context.Context, filters store.ListFilters) ([]types.StatusEvent, error) {
	if filters.Limit <= 0 {
		filters.Limit = store.DefaultListLimit
	}

	query, args := buildListQuery(filters)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list status events: %w", err)
	}
	defer rows.Close()

	return scanStatusEvents(rows)
}

func buildListQuery(filters store.ListFilters) (string, []any) {
	query := `SELECT ` + statusEventColumns + ` FROM status_events WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.CompanyKey != "" {
		query += fmt.Sprintf(" AND company_key = $%d", argNum)
		args = append(args, filters.CompanyKey)
		argNum++
	}
	if filters.StatusType != "" {
		query += fmt.Sprintf(" AND status_type = $%d", argNum)
		args = append(args, string(filters.StatusType))
		argNum++
	}
	if filters.VerifiedOnly {
		query += " AND verified"
	}

	query += fmt.Sprintf(" ORDER BY start_date DESC, created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)
	return query, args
}

func scanStatusEvents(rows pgx.Rows) ([]types.StatusEvent, error) {
	var events []types.StatusEvent
	for rows.Next() {
		e, err := scanStatusEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status events: %w", err)
	}
	return events, nil
}

func scanStatusEvent(row pgx.Row) (*types.StatusEvent, error) {
	var (
		e           types.StatusEvent
		statusType  string
		severity    string
		sourcesJSON []byte
	)
	if err := row.Scan(&e.ID, &e.CompanyName, &e.CompanyKey, &statusType, &severity, &e.AffectedDepartments,
		&e.EmployeeCountImpact, &e.StartDate, &e.EndDate, &e.Description, &e.Verified, &sourcesJSON, &e.Version,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	e.StatusType = types.StatusType(statusType)
	e.Severity = types.Severity(severity)
	if len(e.AffectedDepartments) == 0 {
		e.AffectedDepartments = nil
	}
	if err := json.Unmarshal(sourcesJSON, &e.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}
	return &e, nil
}

func departmentsOrEmpty(departments []string) []string {
	if departments == nil {
		return []string{}
	}
	return departments
}

// dateOnly truncates to a UTC calendar date for DATE columns.
func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func optionalDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOnly(*t)
	return &d
}

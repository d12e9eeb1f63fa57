package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/workforce-signals/internal/types"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a Store backed by a local SQLite database.
// Safe for concurrent use; writes are serialized by an internal mutex.
type SQLite struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	connStr := path
	if path == ":memory:" {
		// Named per store so separate stores never share one in-memory database.
		connStr = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A shared in-memory database must not be spread across pool connections.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS status_events (
		id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		company_key TEXT NOT NULL,
		status_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		affected_departments TEXT NOT NULL DEFAULT '[]',
		employee_count_impact INTEGER,
		start_date TEXT NOT NULL,
		end_date TEXT,
		description TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		sources TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_events_candidates
		ON status_events(company_key, status_type, start_date DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

const selectColumns = `id, company_name, company_key, status_type, severity, affected_departments,
	employee_count_impact, start_date, end_date, description, verified, sources, version,
	created_at, updated_at`

// FindCandidates returns recent events sharing the grouping key.
func (s *SQLite) FindCandidates(ctx context.Context, companyKey string, statusType types.StatusType, since time.Time, limit int) ([]types.StatusEvent, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM status_events
		 WHERE company_key = ? AND status_type = ? AND start_date >= ?
		 ORDER BY start_date DESC, created_at DESC
		 LIMIT ?`,
		companyKey, string(statusType), since.UTC().Format(types.DateLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Insert persists a new event.
func (s *SQLite) Insert(ctx context.Context, event *types.StatusEvent) error {
	if len(event.Sources) == 0 {
		return ErrEmptySources
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Version = 1

	row, err := toRow(event)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO status_events (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.companyName, row.companyKey, row.statusType, row.severity, row.departments,
		row.impact, row.startDate, row.endDate, row.description, row.verified, row.sources, row.version,
		row.createdAt, row.updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert status event: %w", err)
	}
	return nil
}

// Update applies a version-checked patch.
func (s *SQLite) Update(ctx context.Context, id uuid.UUID, patch Patch) (*types.StatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getEvent(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != patch.ExpectedVersion {
		return nil, ErrVersionConflict
	}
	if err := ValidatePatch(current, patch); err != nil {
		return nil, err
	}

	ApplyPatch(current, patch, s.now().UTC())

	row, err := toRow(current)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE status_events
		 SET sources = ?, verified = ?, description = ?, employee_count_impact = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		row.sources, row.verified, row.description, row.impact, row.updatedAt,
		row.id, patch.ExpectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update status event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return current, nil
}

// Get returns a single event by ID.
func (s *SQLite) Get(ctx context.Context, id uuid.UUID) (*types.StatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEvent(ctx, s.db, id)
}

// List returns events matching filters.
func (s *SQLite) List(ctx context.Context, filters ListFilters) ([]types.StatusEvent, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}

	query := `SELECT ` + selectColumns + ` FROM status_events WHERE 1=1`
	args := []any{}
	if filters.CompanyKey != "" {
		query += " AND company_key = ?"
		args = append(args, filters.CompanyKey)
	}
	if filters.StatusType != "" {
		query += " AND status_type = ?"
		args = append(args, string(filters.StatusType))
	}
	if filters.VerifiedOnly {
		query += " AND verified = 1"
	}
	query += " ORDER BY start_date DESC, created_at DESC LIMIT ?"
	args = append(args, filters.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list status events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ApplyPatch mutates event in place with the merge engine's changes.
func ApplyPatch(event *types.StatusEvent, patch Patch, now time.Time) {
	event.Sources = patch.Sources
	event.Verified = event.Verified || patch.Verified
	event.Description = patch.Description
	if patch.EmployeeCountImpact != nil {
		event.EmployeeCountImpact = patch.EmployeeCountImpact
	}
	event.Version++
	event.UpdatedAt = now
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getEvent(ctx context.Context, q queryer, id uuid.UUID) (*types.StatusEvent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM status_events WHERE id = ?`, id.String())
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get status event: %w", err)
	}
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]types.StatusEvent, error) {
	var events []types.StatusEvent
	for rows.Next() {
		e, err := scanEvent(rows)
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

// sqliteRow is the column encoding of a StatusEvent.
type sqliteRow struct {
	id          string
	companyName string
	companyKey  string
	statusType  string
	severity    string
	departments string
	impact      sql.NullInt64
	startDate   string
	endDate     sql.NullString
	description string
	verified    int
	sources     string
	version     int
	createdAt   string
	updatedAt   string
}

func toRow(e *types.StatusEvent) (*sqliteRow, error) {
	departments := e.AffectedDepartments
	if departments == nil {
		departments = []string{}
	}
	deptJSON, err := json.Marshal(departments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal departments: %w", err)
	}
	sourcesJSON, err := json.Marshal(e.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sources: %w", err)
	}

	r := &sqliteRow{
		id:          e.ID.String(),
		companyName: e.CompanyName,
		companyKey:  e.CompanyKey,
		statusType:  string(e.StatusType),
		severity:    string(e.Severity),
		departments: string(deptJSON),
		startDate:   e.StartDate.UTC().Format(types.DateLayout),
		description: e.Description,
		sources:     string(sourcesJSON),
		version:     e.Version,
		createdAt:   e.CreatedAt.UTC().Format(timeLayout),
		updatedAt:   e.UpdatedAt.UTC().Format(timeLayout),
	}
	if e.EmployeeCountImpact != nil {
		r.impact = sql.NullInt64{Int64: int64(*e.EmployeeCountImpact), Valid: true}
	}
	if e.EndDate != nil {
		r.endDate = sql.NullString{String: e.EndDate.UTC().Format(types.DateLayout), Valid: true}
	}
	if e.Verified {
		r.verified = 1
	}
	return r, nil
}

func scanEvent(sc scanner) (*types.StatusEvent, error) {
	var r sqliteRow
	if err := sc.Scan(&r.id, &r.companyName, &r.companyKey, &r.statusType, &r.severity, &r.departments,
		&r.impact, &r.startDate, &r.endDate, &r.description, &r.verified, &r.sources, &r.version,
		&r.createdAt, &r.updatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(r.id)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", r.id, err)
	}
	e := &types.StatusEvent{
		ID:          id,
		CompanyName: r.companyName,
		CompanyKey:  r.companyKey,
		StatusType:  types.StatusType(r.statusType),
		Severity:    types.Severity(r.severity),
		Description: r.description,
		Verified:    r.verified != 0,
		Version:     r.version,
	}
	if err := json.Unmarshal([]byte(r.departments), &e.AffectedDepartments); err != nil {
		return nil, fmt.Errorf("invalid departments: %w", err)
	}
	if len(e.AffectedDepartments) == 0 {
		e.AffectedDepartments = nil
	}
	if err := json.Unmarshal([]byte(r.sources), &e.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}
	if r.impact.Valid {
		n := int(r.impact.Int64)
		e.EmployeeCountImpact = &n
	}
	if e.StartDate, err = time.Parse(types.DateLayout, r.startDate); err != nil {
		return nil, fmt.Errorf("invalid start_date: %w", err)
	}
	if r.endDate.Valid {
		end, err := time.Parse(types.DateLayout, r.endDate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date: %w", err)
		}
		e.EndDate = &end
	}
	if e.CreatedAt, err = time.Parse(timeLayout, r.createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, r.updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}
	return e, nil
}

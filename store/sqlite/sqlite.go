/*
Package sqlite provides a SQLite-backed implementation of the worklog storage interfaces.

PURPOSE:
  Persists work intervals, punch events and the daily schedule so that the
  reconciliation engine can run every write path inside one database
  transaction. In production the same patterns apply to PostgreSQL with
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  worklog.Store:          Interval and punch persistence
  worklog.TxStore:        Atomic multi-step reconciliation
  worklog.ScheduleSource: Stored DailyScheduleConfig

KEY TABLES:
  work_intervals:  One row per interval; end_time NULL while open
  punch_events:    Raw IN/OUT punches
  schedule_config: Single-row table holding the daily schedule

TIMESTAMPS:
  Stored as RFC3339 strings in UTC, which sort lexically. Precision is one
  second.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, so
  ":memory:" databases and transactions see the same data. In production
  with PostgreSQL, database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/timeclock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := worklog.NewEngine(store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - worklog/store.go: Interface definitions
  - worklog/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/timeclock/worklog"
)

const timeLayout = time.RFC3339

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Work intervals (end_time NULL while open)
	CREATE TABLE IF NOT EXISTS work_intervals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		project_code TEXT NOT NULL DEFAULT '',
		project_name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT,
		is_overtime INTEGER NOT NULL DEFAULT 0,
		is_edited INTEGER NOT NULL DEFAULT 0,
		edit_reason TEXT,
		edited_by TEXT,
		edited_at TEXT,
		edit_ip_address TEXT,
		original_start TEXT,
		original_end TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Day scans (hot path for every reconciliation)
	CREATE INDEX IF NOT EXISTS idx_intervals_user_start
		ON work_intervals(user_id, start_time);

	-- Clock-out lookup
	CREATE INDEX IF NOT EXISTS idx_intervals_open
		ON work_intervals(user_id, start_time DESC) WHERE end_time IS NULL;

	-- Punch events
	CREATE TABLE IF NOT EXISTS punch_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		punch_type TEXT NOT NULL CHECK (punch_type IN ('IN', 'OUT')),
		punched_at TEXT NOT NULL,
		is_edited INTEGER NOT NULL DEFAULT 0,
		edited_by TEXT,
		edited_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_punches_user_time
		ON punch_events(user_id, punched_at DESC);

	-- Daily schedule (single row)
	CREATE TABLE IF NOT EXISTS schedule_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		normal_work_start TEXT NOT NULL,
		normal_work_end TEXT NOT NULL,
		lunch_break_start TEXT NOT NULL,
		lunch_break_end TEXT NOT NULL,
		overtime_start TEXT NOT NULL,
		minimum_overtime_unit INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INTERVAL STORE (worklog.Store interface)
// =============================================================================

const intervalColumns = `
	id, user_id, project_code, project_name, category, content,
	start_time, end_time, is_overtime,
	is_edited, edit_reason, edited_by, edited_at, edit_ip_address,
	original_start, original_end, created_at, updated_at`

// FindIntervals returns the user's intervals starting within day, ordered by start.
func (s *Store) FindIntervals(ctx context.Context, userID worklog.UserID, day worklog.DayRange, excludeID worklog.IntervalID) ([]worklog.WorkInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return findIntervals(ctx, s.db, userID, day, excludeID)
}

// GetInterval returns a single interval or a *worklog.NotFoundError.
func (s *Store) GetInterval(ctx context.Context, id worklog.IntervalID) (worklog.WorkInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getInterval(ctx, s.db, id)
}

// FindOpenIntervals returns the user's open intervals, newest first.
func (s *Store) FindOpenIntervals(ctx context.Context, userID worklog.UserID) ([]worklog.WorkInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return findOpenIntervals(ctx, s.db, userID)
}

// CreateInterval inserts iv under a fresh id.
func (s *Store) CreateInterval(ctx context.Context, iv worklog.WorkInterval) (worklog.WorkInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return createInterval(ctx, s.db, iv)
}

// UpdateInterval applies patch to the stored interval.
func (s *Store) UpdateInterval(ctx context.Context, id worklog.IntervalID, patch worklog.Patch) (worklog.WorkInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateInterval(ctx, s.db, id, patch)
}

// DeleteInterval removes an interval.
func (s *Store) DeleteInterval(ctx context.Context, id worklog.IntervalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deleteInterval(ctx, s.db, id)
}

func findIntervals(ctx context.Context, q querier, userID worklog.UserID, day worklog.DayRange, excludeID worklog.IntervalID) ([]worklog.WorkInterval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM work_intervals
		WHERE user_id = ? AND start_time >= ? AND start_time < ? AND id != ?
		ORDER BY start_time ASC, id ASC
	`
	return queryIntervals(ctx, q, query, userID, formatTime(day.Start), formatTime(day.End), excludeID)
}

func findOpenIntervals(ctx context.Context, q querier, userID worklog.UserID) ([]worklog.WorkInterval, error) {
	query := `SELECT ` + intervalColumns + `
		FROM work_intervals
		WHERE user_id = ? AND end_time IS NULL
		ORDER BY start_time DESC, id ASC
	`
	return queryIntervals(ctx, q, query, userID)
}

func getInterval(ctx context.Context, q querier, id worklog.IntervalID) (worklog.WorkInterval, error) {
	ivs, err := queryIntervals(ctx, q, `SELECT `+intervalColumns+` FROM work_intervals WHERE id = ?`, id)
	if err != nil {
		return worklog.WorkInterval{}, err
	}
	if len(ivs) == 0 {
		return worklog.WorkInterval{}, &worklog.NotFoundError{Kind: "interval", ID: string(id)}
	}
	return ivs[0], nil
}

func createInterval(ctx context.Context, q querier, iv worklog.WorkInterval) (worklog.WorkInterval, error) {
	now := time.Now().UTC().Truncate(time.Second)
	iv.ID = worklog.IntervalID(uuid.NewString())
	iv.CreatedAt = now
	iv.UpdatedAt = now

	query := `INSERT INTO work_intervals (` + intervalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	p := iv.Provenance
	_, err := q.ExecContext(ctx, query,
		iv.ID,
		iv.UserID,
		iv.ProjectCode,
		iv.ProjectName,
		iv.Category,
		iv.Content,
		formatTime(iv.Start),
		nullEnd(iv.End),
		iv.IsOvertime,
		p.IsEdited,
		nullString(p.EditReason),
		nullString(p.EditedBy),
		nullTime(p.EditedAt),
		nullString(p.EditIPAddress),
		nullTime(p.OriginalStart),
		nullEnd(p.OriginalEnd),
		formatTime(iv.CreatedAt),
		formatTime(iv.UpdatedAt),
	)
	if err != nil {
		return worklog.WorkInterval{}, fmt.Errorf("failed to insert interval: %w", err)
	}

	return normalize(iv), nil
}

func updateInterval(ctx context.Context, q querier, id worklog.IntervalID, patch worklog.Patch) (worklog.WorkInterval, error) {
	iv, err := getInterval(ctx, q, id)
	if err != nil {
		return worklog.WorkInterval{}, err
	}
	iv = patch.Apply(iv)
	iv.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	query := `
		UPDATE work_intervals SET
			project_code = ?, project_name = ?, category = ?, content = ?,
			start_time = ?, end_time = ?, is_overtime = ?,
			is_edited = ?, edit_reason = ?, edited_by = ?, edited_at = ?, edit_ip_address = ?,
			original_start = ?, original_end = ?, updated_at = ?
		WHERE id = ?
	`
	p := iv.Provenance
	_, err = q.ExecContext(ctx, query,
		iv.ProjectCode,
		iv.ProjectName,
		iv.Category,
		iv.Content,
		formatTime(iv.Start),
		nullEnd(iv.End),
		iv.IsOvertime,
		p.IsEdited,
		nullString(p.EditReason),
		nullString(p.EditedBy),
		nullTime(p.EditedAt),
		nullString(p.EditIPAddress),
		nullTime(p.OriginalStart),
		nullEnd(p.OriginalEnd),
		formatTime(iv.UpdatedAt),
		id,
	)
	if err != nil {
		return worklog.WorkInterval{}, fmt.Errorf("failed to update interval: %w", err)
	}

	return normalize(iv), nil
}

func deleteInterval(ctx context.Context, q querier, id worklog.IntervalID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM work_intervals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete interval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &worklog.NotFoundError{Kind: "interval", ID: string(id)}
	}
	return nil
}

func queryIntervals(ctx context.Context, q querier, query string, args ...any) ([]worklog.WorkInterval, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals: %w", err)
	}
	defer rows.Close()

	var intervals []worklog.WorkInterval
	for rows.Next() {
		iv, err := scanInterval(rows)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}

	return intervals, rows.Err()
}

func scanInterval(rows *sql.Rows) (worklog.WorkInterval, error) {
	var (
		iv            worklog.WorkInterval
		startTime     string
		endTime       sql.NullString
		editReason    sql.NullString
		editedBy      sql.NullString
		editedAt      sql.NullString
		editIP        sql.NullString
		originalStart sql.NullString
		originalEnd   sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := rows.Scan(
		&iv.ID, &iv.UserID, &iv.ProjectCode, &iv.ProjectName, &iv.Category, &iv.Content,
		&startTime, &endTime, &iv.IsOvertime,
		&iv.Provenance.IsEdited, &editReason, &editedBy, &editedAt, &editIP,
		&originalStart, &originalEnd, &createdAt, &updatedAt,
	)
	if err != nil {
		return iv, fmt.Errorf("failed to scan interval: %w", err)
	}

	iv.Start = parseTime(startTime)
	iv.End = parseEnd(endTime)
	iv.Provenance.EditReason = editReason.String
	iv.Provenance.EditedBy = editedBy.String
	iv.Provenance.EditedAt = parseNullTime(editedAt)
	iv.Provenance.EditIPAddress = editIP.String
	iv.Provenance.OriginalStart = parseNullTime(originalStart)
	iv.Provenance.OriginalEnd = parseEnd(originalEnd)
	iv.CreatedAt = parseTime(createdAt)
	iv.UpdatedAt = parseTime(updatedAt)

	return iv, nil
}

// =============================================================================
// PUNCH EVENTS
// =============================================================================

// FindPunchEvents returns the user's punches within day, newest first.
func (s *Store) FindPunchEvents(ctx context.Context, userID worklog.UserID, day worklog.DayRange) ([]worklog.PunchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return findPunchEvents(ctx, s.db, userID, day)
}

// RecordPunch inserts a punch under a fresh id.
func (s *Store) RecordPunch(ctx context.Context, ev worklog.PunchEvent) (worklog.PunchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return recordPunch(ctx, s.db, ev)
}

// UpdatePunch overwrites a stored punch.
func (s *Store) UpdatePunch(ctx context.Context, ev worklog.PunchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updatePunch(ctx, s.db, ev)
}

func findPunchEvents(ctx context.Context, q querier, userID worklog.UserID, day worklog.DayRange) ([]worklog.PunchEvent, error) {
	query := `
		SELECT id, user_id, punch_type, punched_at, is_edited, edited_by, edited_at
		FROM punch_events
		WHERE user_id = ? AND punched_at >= ? AND punched_at < ?
		ORDER BY punched_at DESC, id ASC
	`
	rows, err := q.QueryContext(ctx, query, userID, formatTime(day.Start), formatTime(day.End))
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var events []worklog.PunchEvent
	for rows.Next() {
		var (
			ev        worklog.PunchEvent
			punchedAt string
			editedBy  sql.NullString
			editedAt  sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Type, &punchedAt, &ev.Edited, &editedBy, &editedAt); err != nil {
			return nil, fmt.Errorf("failed to scan punch: %w", err)
		}
		ev.Timestamp = parseTime(punchedAt)
		ev.EditedBy = editedBy.String
		ev.EditedAt = parseNullTime(editedAt)
		events = append(events, ev)
	}

	return events, rows.Err()
}

func recordPunch(ctx context.Context, q querier, ev worklog.PunchEvent) (worklog.PunchEvent, error) {
	ev.ID = worklog.PunchID(uuid.NewString())

	query := `
		INSERT INTO punch_events (id, user_id, punch_type, punched_at, is_edited, edited_by, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		ev.ID, ev.UserID, ev.Type, formatTime(ev.Timestamp),
		ev.Edited, nullString(ev.EditedBy), nullTime(ev.EditedAt),
	)
	if err != nil {
		return worklog.PunchEvent{}, fmt.Errorf("failed to insert punch: %w", err)
	}

	ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Second)
	return ev, nil
}

func updatePunch(ctx context.Context, q querier, ev worklog.PunchEvent) error {
	query := `
		UPDATE punch_events SET punch_type = ?, punched_at = ?, is_edited = ?, edited_by = ?, edited_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		ev.Type, formatTime(ev.Timestamp), ev.Edited,
		nullString(ev.EditedBy), nullTime(ev.EditedAt), ev.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update punch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &worklog.NotFoundError{Kind: "punch", ID: string(ev.ID)}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (worklog.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store worklog.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindIntervals(ctx context.Context, userID worklog.UserID, day worklog.DayRange, excludeID worklog.IntervalID) ([]worklog.WorkInterval, error) {
	return findIntervals(ctx, ts.tx, userID, day, excludeID)
}

func (ts *txStore) GetInterval(ctx context.Context, id worklog.IntervalID) (worklog.WorkInterval, error) {
	return getInterval(ctx, ts.tx, id)
}

func (ts *txStore) FindOpenIntervals(ctx context.Context, userID worklog.UserID) ([]worklog.WorkInterval, error) {
	return findOpenIntervals(ctx, ts.tx, userID)
}

func (ts *txStore) CreateInterval(ctx context.Context, iv worklog.WorkInterval) (worklog.WorkInterval, error) {
	return createInterval(ctx, ts.tx, iv)
}

func (ts *txStore) UpdateInterval(ctx context.Context, id worklog.IntervalID, patch worklog.Patch) (worklog.WorkInterval, error) {
	return updateInterval(ctx, ts.tx, id, patch)
}

func (ts *txStore) DeleteInterval(ctx context.Context, id worklog.IntervalID) error {
	return deleteInterval(ctx, ts.tx, id)
}

func (ts *txStore) FindPunchEvents(ctx context.Context, userID worklog.UserID, day worklog.DayRange) ([]worklog.PunchEvent, error) {
	return findPunchEvents(ctx, ts.tx, userID, day)
}

func (ts *txStore) RecordPunch(ctx context.Context, ev worklog.PunchEvent) (worklog.PunchEvent, error) {
	return recordPunch(ctx, ts.tx, ev)
}

func (ts *txStore) UpdatePunch(ctx context.Context, ev worklog.PunchEvent) error {
	return updatePunch(ctx, ts.tx, ev)
}

// =============================================================================
// SCHEDULE STORE (worklog.ScheduleSource interface)
// =============================================================================

// LoadDailyScheduleConfig returns the stored schedule, or the default
// schedule when none has been saved.
func (s *Store) LoadDailyScheduleConfig(ctx context.Context) (worklog.DailyScheduleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT normal_work_start, normal_work_end, lunch_break_start, lunch_break_end,
		       overtime_start, minimum_overtime_unit
		FROM schedule_config WHERE id = 1
	`
	var cfg worklog.DailyScheduleConfig
	err := s.db.QueryRowContext(ctx, query).Scan(
		&cfg.NormalWorkStart, &cfg.NormalWorkEnd,
		&cfg.LunchBreakStart, &cfg.LunchBreakEnd,
		&cfg.OvertimeStart, &cfg.MinimumOvertimeUnit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return worklog.DefaultSchedule(), nil
	}
	if err != nil {
		return worklog.DailyScheduleConfig{}, fmt.Errorf("failed to load schedule: %w", err)
	}
	return cfg, nil
}

// SaveDailyScheduleConfig validates and replaces the stored schedule.
func (s *Store) SaveDailyScheduleConfig(ctx context.Context, cfg worklog.DailyScheduleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeSchedule(ctx, "INSERT OR REPLACE", cfg)
}

// SeedSchedule stores cfg only if no schedule has been saved yet.
func (s *Store) SeedSchedule(ctx context.Context, cfg worklog.DailyScheduleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeSchedule(ctx, "INSERT OR IGNORE", cfg)
}

func (s *Store) writeSchedule(ctx context.Context, verb string, cfg worklog.DailyScheduleConfig) error {
	query := verb + ` INTO schedule_config
		(id, normal_work_start, normal_work_end, lunch_break_start, lunch_break_end,
		 overtime_start, minimum_overtime_unit, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		cfg.NormalWorkStart, cfg.NormalWorkEnd,
		cfg.LunchBreakStart, cfg.LunchBreakEnd,
		cfg.OvertimeStart, cfg.MinimumOvertimeUnit,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

var (
	_ worklog.TxStore        = (*Store)(nil)
	_ worklog.ScheduleSource = (*Store)(nil)
)

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t.UTC()
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullEnd(e worklog.End) sql.NullString {
	if t, ok := e.Time(); ok {
		return sql.NullString{String: formatTime(t), Valid: true}
	}
	return sql.NullString{}
}

func parseEnd(s sql.NullString) worklog.End {
	if !s.Valid {
		return worklog.OpenEnd()
	}
	return worklog.ClosedAt(parseTime(s.String))
}

// normalize returns iv as it reads back from the database.
func normalize(iv worklog.WorkInterval) worklog.WorkInterval {
	trunc := func(t time.Time) time.Time {
		if t.IsZero() {
			return t
		}
		return t.UTC().Truncate(time.Second)
	}
	iv.Start = trunc(iv.Start)
	if end, ok := iv.End.Time(); ok {
		iv.End = worklog.ClosedAt(trunc(end))
	}
	iv.Provenance.EditedAt = trunc(iv.Provenance.EditedAt)
	iv.Provenance.OriginalStart = trunc(iv.Provenance.OriginalStart)
	if end, ok := iv.Provenance.OriginalEnd.Time(); ok {
		iv.Provenance.OriginalEnd = worklog.ClosedAt(trunc(end))
	}
	return iv
}

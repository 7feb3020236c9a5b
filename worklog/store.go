/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the boundary between interval algebra and the relational store.
  The engine never touches SQL; it reads and writes through Store and wraps
  every read-modify-write sequence in TxStore.WithTx.

KEY INTERFACES:
  Store:          Interval and punch CRUD
  TxStore:        Store + atomic unit (WithTx)
  ScheduleSource: The daily schedule used by the work-time calculator

ATOMICITY:
  WithTx must roll back every write made through the Store passed to fn
  when fn returns an error. A split whose shrink succeeded but whose tail
  insert failed must leave no trace.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - worklog/store/memory.go: In-memory for tests and dev
*/
package worklog

import "context"

// Store handles persistence of work intervals and punch events.
type Store interface {
	// FindIntervals returns the user's intervals whose start lies in day,
	// ordered by start. excludeID is skipped when non-empty.
	FindIntervals(ctx context.Context, userID UserID, day DayRange, excludeID IntervalID) ([]WorkInterval, error)

	// GetInterval returns ErrNotFound (as *NotFoundError) when id does not exist.
	GetInterval(ctx context.Context, id IntervalID) (WorkInterval, error)

	// FindOpenIntervals returns the user's open intervals, newest start first.
	FindOpenIntervals(ctx context.Context, userID UserID) ([]WorkInterval, error)

	// CreateInterval assigns an id and timestamps and returns the stored record.
	CreateInterval(ctx context.Context, iv WorkInterval) (WorkInterval, error)

	UpdateInterval(ctx context.Context, id IntervalID, patch Patch) (WorkInterval, error)
	DeleteInterval(ctx context.Context, id IntervalID) error

	// FindPunchEvents returns the user's punches in day, newest first.
	FindPunchEvents(ctx context.Context, userID UserID, day DayRange) ([]PunchEvent, error)
	RecordPunch(ctx context.Context, ev PunchEvent) (PunchEvent, error)
	UpdatePunch(ctx context.Context, ev PunchEvent) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ScheduleSource supplies the daily schedule configuration.
type ScheduleSource interface {
	LoadDailyScheduleConfig(ctx context.Context) (DailyScheduleConfig, error)
}

// StaticSchedule serves a fixed configuration.
type StaticSchedule DailyScheduleConfig

func (s StaticSchedule) LoadDailyScheduleConfig(context.Context) (DailyScheduleConfig, error) {
	return DailyScheduleConfig(s), nil
}

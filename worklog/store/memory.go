// Package store provides in-memory worklog.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timeclock/worklog"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	intervals map[worklog.IntervalID]worklog.WorkInterval
	punches   map[worklog.PunchID]worklog.PunchEvent
	schedule  worklog.DailyScheduleConfig

	// FailOn makes the named operation fail, for rollback tests.
	FailOn map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		intervals: make(map[worklog.IntervalID]worklog.WorkInterval),
		punches:   make(map[worklog.PunchID]worklog.PunchEvent),
		schedule:  worklog.DefaultSchedule(),
		FailOn:    make(map[string]error),
	}
}

func (m *Memory) FindIntervals(_ context.Context, userID worklog.UserID, day worklog.DayRange, excludeID worklog.IntervalID) ([]worklog.WorkInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findIntervalsLocked(userID, day, excludeID)
}

func (m *Memory) GetInterval(_ context.Context, id worklog.IntervalID) (worklog.WorkInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getIntervalLocked(id)
}

func (m *Memory) FindOpenIntervals(_ context.Context, userID worklog.UserID) ([]worklog.WorkInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOpenLocked(userID), nil
}

func (m *Memory) CreateInterval(_ context.Context, iv worklog.WorkInterval) (worklog.WorkInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createIntervalLocked(iv)
}

func (m *Memory) UpdateInterval(_ context.Context, id worklog.IntervalID, patch worklog.Patch) (worklog.WorkInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateIntervalLocked(id, patch)
}

func (m *Memory) DeleteInterval(_ context.Context, id worklog.IntervalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteIntervalLocked(id)
}

func (m *Memory) FindPunchEvents(_ context.Context, userID worklog.UserID, day worklog.DayRange) ([]worklog.PunchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPunchesLocked(userID, day), nil
}

func (m *Memory) RecordPunch(_ context.Context, ev worklog.PunchEvent) (worklog.PunchEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordPunchLocked(ev)
}

func (m *Memory) UpdatePunch(_ context.Context, ev worklog.PunchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePunchLocked(ev)
}

// LoadDailyScheduleConfig implements worklog.ScheduleSource.
func (m *Memory) LoadDailyScheduleConfig(context.Context) (worklog.DailyScheduleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedule, nil
}

func (m *Memory) SaveDailyScheduleConfig(_ context.Context, cfg worklog.DailyScheduleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = cfg
	return nil
}

// All returns every stored interval ordered by start, for assertions.
func (m *Memory) All() []worklog.WorkInterval {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]worklog.WorkInterval, 0, len(m.intervals))
	for _, iv := range m.intervals {
		out = append(out, iv)
	}
	sortIntervals(out)
	return out
}

// =============================================================================
// LOCKED OPERATIONS - Shared by Memory and the transactional view
// =============================================================================

func (m *Memory) fail(op string) error {
	return m.FailOn[op]
}

func (m *Memory) findIntervalsLocked(userID worklog.UserID, day worklog.DayRange, excludeID worklog.IntervalID) ([]worklog.WorkInterval, error) {
	if err := m.fail("FindIntervals"); err != nil {
		return nil, err
	}
	var out []worklog.WorkInterval
	for _, iv := range m.intervals {
		if iv.UserID != userID || (excludeID != "" && iv.ID == excludeID) {
			continue
		}
		if day.Contains(iv.Start) {
			out = append(out, iv)
		}
	}
	sortIntervals(out)
	return out, nil
}

func (m *Memory) getIntervalLocked(id worklog.IntervalID) (worklog.WorkInterval, error) {
	iv, ok := m.intervals[id]
	if !ok {
		return worklog.WorkInterval{}, &worklog.NotFoundError{Kind: "interval", ID: string(id)}
	}
	return iv, nil
}

func (m *Memory) findOpenLocked(userID worklog.UserID) []worklog.WorkInterval {
	var out []worklog.WorkInterval
	for _, iv := range m.intervals {
		if iv.UserID == userID && iv.IsOpen() {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out
}

func (m *Memory) createIntervalLocked(iv worklog.WorkInterval) (worklog.WorkInterval, error) {
	if err := m.fail("CreateInterval"); err != nil {
		return worklog.WorkInterval{}, err
	}
	now := time.Now().UTC()
	iv.ID = worklog.IntervalID(uuid.NewString())
	iv.CreatedAt = now
	iv.UpdatedAt = now
	m.intervals[iv.ID] = iv
	return iv, nil
}

func (m *Memory) updateIntervalLocked(id worklog.IntervalID, patch worklog.Patch) (worklog.WorkInterval, error) {
	if err := m.fail("UpdateInterval"); err != nil {
		return worklog.WorkInterval{}, err
	}
	iv, err := m.getIntervalLocked(id)
	if err != nil {
		return worklog.WorkInterval{}, err
	}
	iv = patch.Apply(iv)
	iv.UpdatedAt = time.Now().UTC()
	m.intervals[id] = iv
	return iv, nil
}

func (m *Memory) deleteIntervalLocked(id worklog.IntervalID) error {
	if err := m.fail("DeleteInterval"); err != nil {
		return err
	}
	if _, ok := m.intervals[id]; !ok {
		return &worklog.NotFoundError{Kind: "interval", ID: string(id)}
	}
	delete(m.intervals, id)
	return nil
}

func (m *Memory) findPunchesLocked(userID worklog.UserID, day worklog.DayRange) []worklog.PunchEvent {
	var out []worklog.PunchEvent
	for _, ev := range m.punches {
		if ev.UserID == userID && day.Contains(ev.Timestamp) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *Memory) recordPunchLocked(ev worklog.PunchEvent) (worklog.PunchEvent, error) {
	if err := m.fail("RecordPunch"); err != nil {
		return worklog.PunchEvent{}, err
	}
	ev.ID = worklog.PunchID(uuid.NewString())
	m.punches[ev.ID] = ev
	return ev, nil
}

func (m *Memory) updatePunchLocked(ev worklog.PunchEvent) error {
	if _, ok := m.punches[ev.ID]; !ok {
		return &worklog.NotFoundError{Kind: "punch", ID: string(ev.ID)}
	}
	m.punches[ev.ID] = ev
	return nil
}

func sortIntervals(ivs []worklog.WorkInterval) {
	sort.Slice(ivs, func(i, j int) bool {
		if ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].ID < ivs[j].ID
		}
		return ivs[i].Start.Before(ivs[j].Start)
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(worklog.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	intervals map[worklog.IntervalID]worklog.WorkInterval
	punches   map[worklog.PunchID]worklog.PunchEvent
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		intervals: make(map[worklog.IntervalID]worklog.WorkInterval, len(m.intervals)),
		punches:   make(map[worklog.PunchID]worklog.PunchEvent, len(m.punches)),
	}
	for k, v := range m.intervals {
		s.intervals[k] = v
	}
	for k, v := range m.punches {
		s.punches[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.intervals = s.intervals
	m.punches = s.punches
}

// txMemoryView runs against the parent's maps while WithTx holds the lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) FindIntervals(_ context.Context, userID worklog.UserID, day worklog.DayRange, excludeID worklog.IntervalID) ([]worklog.WorkInterval, error) {
	return tv.parent.findIntervalsLocked(userID, day, excludeID)
}

func (tv *txMemoryView) GetInterval(_ context.Context, id worklog.IntervalID) (worklog.WorkInterval, error) {
	return tv.parent.getIntervalLocked(id)
}

func (tv *txMemoryView) FindOpenIntervals(_ context.Context, userID worklog.UserID) ([]worklog.WorkInterval, error) {
	return tv.parent.findOpenLocked(userID), nil
}

func (tv *txMemoryView) CreateInterval(_ context.Context, iv worklog.WorkInterval) (worklog.WorkInterval, error) {
	return tv.parent.createIntervalLocked(iv)
}

func (tv *txMemoryView) UpdateInterval(_ context.Context, id worklog.IntervalID, patch worklog.Patch) (worklog.WorkInterval, error) {
	return tv.parent.updateIntervalLocked(id, patch)
}

func (tv *txMemoryView) DeleteInterval(_ context.Context, id worklog.IntervalID) error {
	return tv.parent.deleteIntervalLocked(id)
}

func (tv *txMemoryView) FindPunchEvents(_ context.Context, userID worklog.UserID, day worklog.DayRange) ([]worklog.PunchEvent, error) {
	return tv.parent.findPunchesLocked(userID, day), nil
}

func (tv *txMemoryView) RecordPunch(_ context.Context, ev worklog.PunchEvent) (worklog.PunchEvent, error) {
	return tv.parent.recordPunchLocked(ev)
}

func (tv *txMemoryView) UpdatePunch(_ context.Context, ev worklog.PunchEvent) error {
	return tv.parent.updatePunchLocked(ev)
}

var (
	_ worklog.TxStore        = (*Memory)(nil)
	_ worklog.ScheduleSource = (*Memory)(nil)
)

/*
engine.go - Entry point used by HTTP handlers and the CLI

PURPOSE:
  Engine binds the pure algorithms (PlanResolution, PlanMerge,
  ComputeWorkTime, DeriveClockState) to a TxStore, a schedule source, a
  fixed-offset local zone and a clock. Every write path (punch in/out,
  manual entry, edit, merge) goes through here so the no-overlap invariant
  is enforced in one place.

OPERATIONS:
  ResolveAndApply   Insert (excludeID == "") or retime (excludeID == id)
  MergeDay          Merge same-signature fragments of one day
  PreviewMerge      MergeDay without writes
  DeriveClockStatus Today's in/out state
  ComputeWorkTime   Calculator with the stored schedule
  ClockIn/ClockOut  Punch events + open interval lifecycle
  EditInterval      Patch + provenance + optional punch correction
  SummarizeDay      Normal / overtime totals of a day (summary.go)

CONCURRENCY:
  Each operation is one WithTx call. At most one in-flight reconciliation
  per user is assumed; two clients editing the same user/day concurrently
  may race. Cross-process deployments should take a per-user advisory lock
  around ResolveAndApply and MergeDay.
*/
package worklog

import (
	"context"
	"errors"
	"time"
)

// Engine is safe for concurrent use if its store is.
type Engine struct {
	store            TxStore
	schedule         ScheduleSource
	loc              *time.Location
	now              func() time.Time
	earlyMorningHour int
}

type Option func(*Engine)

// WithLocation sets the zone whose midnight bounds a day. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithEarlyMorningHour(hour int) Option {
	return func(e *Engine) { e.earlyMorningHour = hour }
}

func NewEngine(store TxStore, schedule ScheduleSource, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		schedule:         schedule,
		loc:              time.UTC,
		now:              time.Now,
		earlyMorningHour: DefaultEarlyMorningHour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the current time in the engine's zone.
func (e *Engine) Now() time.Time { return e.now().In(e.loc) }

// Day returns the local calendar day containing t.
func (e *Engine) Day(t time.Time) DayRange { return DayOf(t, e.loc) }

// =============================================================================
// CONFLICT RESOLUTION
// =============================================================================

// ResolveAndApply reconciles candidate against the user's other intervals
// on the candidate's day and writes it. With excludeID set the candidate
// replaces that record. Store failures come back as *ConflictResolutionError
// with nothing applied.
func (e *Engine) ResolveAndApply(ctx context.Context, userID UserID, candidate WorkInterval, excludeID IntervalID) (WorkInterval, error) {
	candidate.UserID = userID
	candidate = candidate.normalized()
	if err := candidate.Validate(); err != nil {
		return WorkInterval{}, err
	}

	var result WorkInterval
	err := e.store.WithTx(ctx, func(s Store) error {
		if excludeID != "" {
			if _, err := getOwned(ctx, s, userID, excludeID); err != nil {
				return err
			}
		}
		var err error
		result, err = e.resolveIn(ctx, s, candidate, excludeID)
		return err
	})
	if err != nil {
		return WorkInterval{}, e.resolutionErr(userID, err)
	}
	return result, nil
}

// resolveIn plans and applies inside an open transaction.
func (e *Engine) resolveIn(ctx context.Context, s Store, candidate WorkInterval, excludeID IntervalID) (WorkInterval, error) {
	existing, err := s.FindIntervals(ctx, candidate.UserID, e.Day(candidate.Start), excludeID)
	if err != nil {
		return WorkInterval{}, storeErr("find intervals", err)
	}
	plan, err := PlanResolution(candidate, existing, excludeID, e.Now())
	if err != nil {
		return WorkInterval{}, err
	}
	return plan.Apply(ctx, s)
}

func (e *Engine) resolutionErr(userID UserID, err error) error {
	if IsClientError(err) || IsNotFound(err) {
		return err
	}
	return &ConflictResolutionError{UserID: userID, Err: storeErr("transaction", err)}
}

// =============================================================================
// MERGE
// =============================================================================

// MergeDay merges every cluster of the day in one atomic unit.
func (e *Engine) MergeDay(ctx context.Context, userID UserID, day DayRange) ([]MergeReport, error) {
	var reports []MergeReport
	err := e.store.WithTx(ctx, func(s Store) error {
		reports = nil
		ivs, err := s.FindIntervals(ctx, userID, day, "")
		if err != nil {
			return storeErr("find intervals", err)
		}
		for _, c := range PlanMerge(ivs) {
			merged, err := s.CreateInterval(ctx, c.Merged())
			if err != nil {
				return storeErr("create merged", err)
			}
			for _, id := range c.IDs() {
				if err := s.DeleteInterval(ctx, id); err != nil {
					return storeErr("delete merged member", err)
				}
			}
			reports = append(reports, MergeReport{
				OriginalCount: len(c.Members),
				OriginalIDs:   c.IDs(),
				Merged:        merged,
			})
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("merge day", err)
	}
	return reports, nil
}

// PreviewMerge reports what MergeDay would do without writing.
func (e *Engine) PreviewMerge(ctx context.Context, userID UserID, day DayRange) ([]MergePreview, error) {
	ivs, err := e.store.FindIntervals(ctx, userID, day, "")
	if err != nil {
		return nil, storeErr("find intervals", err)
	}
	clusters := PlanMerge(ivs)
	previews := make([]MergePreview, len(clusters))
	for i, c := range clusters {
		previews[i] = c.Preview()
	}
	return previews, nil
}

// =============================================================================
// CLOCK STATE & WORK TIME
// =============================================================================

// DeriveClockStatus reads today's and yesterday's punches around now.
func (e *Engine) DeriveClockStatus(ctx context.Context, userID UserID, now time.Time) (ClockStatus, error) {
	now = now.In(e.loc)
	today := e.Day(now)

	todays, err := e.store.FindPunchEvents(ctx, userID, today)
	if err != nil {
		return ClockStatus{}, storeErr("find punches", err)
	}
	var yesterdays []PunchEvent
	if len(todays) == 0 && now.Hour() < e.earlyMorningHour {
		if yesterdays, err = e.store.FindPunchEvents(ctx, userID, today.Previous()); err != nil {
			return ClockStatus{}, storeErr("find punches", err)
		}
	}
	return DeriveClockState(todays, yesterdays, now, e.earlyMorningHour), nil
}

// ComputeWorkTime runs the calculator against the stored schedule.
func (e *Engine) ComputeWorkTime(ctx context.Context, start, end string) (WorkTime, error) {
	cfg, err := e.schedule.LoadDailyScheduleConfig(ctx)
	if err != nil {
		return WorkTime{}, storeErr("load schedule", err)
	}
	return ComputeWorkTime(start, end, cfg)
}

// =============================================================================
// PUNCH CLOCK
// =============================================================================

// ClockIn records an IN punch at `at` and opens an interval with details.
// Every open interval that started before `at` is truncated at `at`,
// including ones left open on earlier days.
func (e *Engine) ClockIn(ctx context.Context, userID UserID, at time.Time, details WorkInterval) (WorkInterval, error) {
	at = at.Truncate(Precision)
	candidate := details.cloneDetails()
	candidate.UserID = userID
	candidate.Start = at
	candidate.End = OpenEnd()

	var result WorkInterval
	err := e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.RecordPunch(ctx, PunchEvent{UserID: userID, Type: PunchIn, Timestamp: at}); err != nil {
			return storeErr("record punch", err)
		}
		if err := e.closeStaleOpen(ctx, s, userID, at); err != nil {
			return err
		}
		var err error
		result, err = e.resolveIn(ctx, s, candidate, "")
		return err
	})
	if err != nil {
		return WorkInterval{}, e.resolutionErr(userID, err)
	}
	return result, nil
}

// closeStaleOpen truncates open intervals started on a day before at's.
// Same-day ones are left to the resolver. The new end is clamped to the
// next closed interval between the open start and at.
func (e *Engine) closeStaleOpen(ctx context.Context, s Store, userID UserID, at time.Time) error {
	open, err := s.FindOpenIntervals(ctx, userID)
	if err != nil {
		return storeErr("find open intervals", err)
	}
	today := e.Day(at)
	for _, o := range open {
		if !o.Start.Before(today.Start) {
			continue
		}
		var around []WorkInterval
		for d := e.Day(o.Start); d.Start.Before(today.End); d = d.Next() {
			ivs, err := s.FindIntervals(ctx, userID, d, "")
			if err != nil {
				return storeErr("find intervals", err)
			}
			around = append(around, ivs...)
		}
		m := Mutation{Kind: MutationTruncate, Target: o, NewEnd: at}
		m.NewEnd = clampTruncation(m, around, "")
		if err := applyMutation(ctx, s, m); err != nil {
			return err
		}
	}
	return nil
}

// ClockOut records an OUT punch and closes the user's latest open interval.
func (e *Engine) ClockOut(ctx context.Context, userID UserID, at time.Time) (WorkInterval, error) {
	at = at.Truncate(Precision)
	var result WorkInterval
	err := e.store.WithTx(ctx, func(s Store) error {
		open, err := s.FindOpenIntervals(ctx, userID)
		if err != nil {
			return storeErr("find open intervals", err)
		}
		if len(open) == 0 {
			return &NotFoundError{Kind: "open interval"}
		}
		candidate := open[0]
		if !at.After(candidate.Start) {
			return &ValidationError{Field: "at", Message: "clock-out must be after clock-in"}
		}
		candidate.End = ClosedAt(at)

		if _, err := s.RecordPunch(ctx, PunchEvent{UserID: userID, Type: PunchOut, Timestamp: at}); err != nil {
			return storeErr("record punch", err)
		}
		result, err = e.resolveIn(ctx, s, candidate, candidate.ID)
		return err
	})
	if err != nil {
		return WorkInterval{}, e.resolutionErr(userID, err)
	}
	return result, nil
}

// =============================================================================
// INTERVAL CRUD
// =============================================================================

// Edit is a change to an existing interval plus who made it.
type Edit struct {
	Patch     Patch // Provenance in the patch is ignored
	Reason    string
	EditedBy  string
	IPAddress string

	// PunchCorrection retimes the latest same-day IN punch to the new start.
	PunchCorrection bool
}

// EditInterval applies edit to the user's interval id, stamps provenance
// and reconciles the result against the rest of the day.
func (e *Engine) EditInterval(ctx context.Context, userID UserID, id IntervalID, edit Edit) (WorkInterval, error) {
	var result WorkInterval
	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := getOwned(ctx, s, userID, id)
		if err != nil {
			return err
		}

		patch := edit.Patch
		patch.Provenance = nil
		candidate := patch.Apply(existing).normalized()
		candidate.Provenance = e.stampProvenance(existing, edit)

		if err := candidate.Validate(); err != nil {
			return err
		}
		if result, err = e.resolveIn(ctx, s, candidate, id); err != nil {
			return err
		}
		if edit.PunchCorrection {
			return e.retimeClockIn(ctx, s, candidate, edit.EditedBy)
		}
		return nil
	})
	if err != nil {
		return WorkInterval{}, e.resolutionErr(userID, err)
	}
	return result, nil
}

// stampProvenance records the edit. The original snapshot is taken once.
func (e *Engine) stampProvenance(existing WorkInterval, edit Edit) Provenance {
	p := existing.Provenance
	if !p.IsEdited {
		p.OriginalStart = existing.Start
		p.OriginalEnd = existing.End
	}
	p.IsEdited = true
	p.EditReason = edit.Reason
	p.EditedBy = edit.EditedBy
	p.EditedAt = e.Now()
	p.EditIPAddress = edit.IPAddress
	return p
}

func (e *Engine) retimeClockIn(ctx context.Context, s Store, iv WorkInterval, editedBy string) error {
	punches, err := s.FindPunchEvents(ctx, iv.UserID, e.Day(iv.Start))
	if err != nil {
		return storeErr("find punches", err)
	}
	for _, ev := range punches {
		if ev.Type != PunchIn {
			continue
		}
		ev.Timestamp = iv.Start
		ev.Edited = true
		ev.EditedBy = editedBy
		ev.EditedAt = e.Now()
		return storeErr("update punch", s.UpdatePunch(ctx, ev))
	}
	return nil
}

// GetInterval returns the user's interval or a *NotFoundError.
func (e *Engine) GetInterval(ctx context.Context, userID UserID, id IntervalID) (WorkInterval, error) {
	return getOwned(ctx, e.store, userID, id)
}

// ListDay returns the user's intervals starting in day, by start.
func (e *Engine) ListDay(ctx context.Context, userID UserID, day DayRange) ([]WorkInterval, error) {
	ivs, err := e.store.FindIntervals(ctx, userID, day, "")
	if err != nil {
		return nil, storeErr("find intervals", err)
	}
	sortByStart(ivs)
	return ivs, nil
}

func (e *Engine) DeleteInterval(ctx context.Context, userID UserID, id IntervalID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		if _, err := getOwned(ctx, s, userID, id); err != nil {
			return err
		}
		return storeErr("delete interval", s.DeleteInterval(ctx, id))
	})
}

// getOwned hides records of other users behind the same NotFoundError as
// missing ones.
func getOwned(ctx context.Context, s Store, userID UserID, id IntervalID) (WorkInterval, error) {
	iv, err := s.GetInterval(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return WorkInterval{}, &NotFoundError{Kind: "interval", ID: string(id)}
		}
		return WorkInterval{}, storeErr("get interval", err)
	}
	if iv.UserID != userID {
		return WorkInterval{}, &NotFoundError{Kind: "interval", ID: string(id)}
	}
	return iv, nil
}

package worklog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timeclock/worklog"
	"github.com/warp/timeclock/worklog/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T, now time.Time) (*worklog.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	engine := worklog.NewEngine(mem, mem, worklog.WithClock(func() time.Time { return now }))
	return engine, mem
}

func seed(t *testing.T, mem *store.Memory, ivs ...worklog.WorkInterval) []worklog.WorkInterval {
	t.Helper()
	out := make([]worklog.WorkInterval, len(ivs))
	for i, iv := range ivs {
		iv.ID = ""
		created, err := mem.CreateInterval(context.Background(), iv)
		require.NoError(t, err)
		out[i] = created
	}
	return out
}

type span struct{ from, to time.Time }

func closedSpans(ivs []worklog.WorkInterval) []span {
	var out []span
	for _, iv := range ivs {
		if end, ok := iv.End.Time(); ok {
			out = append(out, span{iv.Start, end})
		}
	}
	return out
}

func day() worklog.DayRange {
	return worklog.DayOf(at(0, 0), time.UTC)
}

// =============================================================================
// RESOLVE AND APPLY
// =============================================================================

func TestEngine_ResolveAndApply_SplitFidelity(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	ctx := context.Background()
	seed(t, mem, closed("", at(9, 0), at(12, 0)))

	got, err := engine.ResolveAndApply(ctx, "u1", closed("", at(10, 0), at(11, 0)), "")
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)

	assert.Equal(t, []span{
		{at(9, 0), at(10, 0)},
		{at(10, 0), at(11, 0)},
		{at(11, 0), at(12, 0)},
	}, closedSpans(mem.All()))
}

func TestEngine_ResolveAndApply_TruncatesOpenInterval(t *testing.T) {
	engine, mem := newTestEngine(t, at(10, 30))
	ctx := context.Background()
	seeded := seed(t, mem, open("", at(8, 0)))

	_, err := engine.ResolveAndApply(ctx, "u1", closed("", at(9, 30), at(10, 0)), "")
	require.NoError(t, err)

	running, err := mem.GetInterval(ctx, seeded[0].ID)
	require.NoError(t, err)
	end, ok := running.End.Time()
	require.True(t, ok)
	assert.Equal(t, at(9, 30), end)
	assert.Len(t, mem.All(), 2)
}

func TestEngine_ResolveAndApply_NoOverlapInvariant(t *testing.T) {
	engine, mem := newTestEngine(t, at(20, 0))
	ctx := context.Background()

	candidates := []worklog.WorkInterval{
		closed("", at(9, 0), at(12, 0)),
		closed("", at(10, 0), at(11, 0)),
		closed("", at(8, 30), at(9, 15)),
		closed("", at(11, 30), at(14, 0)),
		open("", at(13, 0)),
		closed("", at(10, 45), at(11, 45)),
		closed("", at(7, 0), at(19, 0)),
		closed("", at(12, 0), at(12, 5)),
	}
	for i, c := range candidates {
		_, err := engine.ResolveAndApply(ctx, "u1", c, "")
		require.NoError(t, err, "candidate %d", i)
		assert.Empty(t, worklog.Overlapping(mem.All()), "after candidate %d", i)
	}
}

func TestEngine_ResolveAndApply_OtherUsersUntouched(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	ctx := context.Background()
	other := closed("", at(9, 0), at(12, 0))
	other.UserID = "u2"
	seed(t, mem, other)

	_, err := engine.ResolveAndApply(ctx, "u1", closed("", at(10, 0), at(11, 0)), "")
	require.NoError(t, err)
	assert.Len(t, mem.All(), 2)
}

func TestEngine_ResolveAndApply_RollsBackOnStoreFailure(t *testing.T) {
	// GIVEN: a split whose tail insert fails
	// THEN: the shrink is rolled back and the error wraps the store failure
	engine, mem := newTestEngine(t, at(18, 0))
	ctx := context.Background()
	seed(t, mem, closed("", at(9, 0), at(12, 0)))
	diskFull := errors.New("disk full")
	mem.FailOn["CreateInterval"] = diskFull

	_, err := engine.ResolveAndApply(ctx, "u1", closed("", at(10, 0), at(11, 0)), "")

	var crErr *worklog.ConflictResolutionError
	require.ErrorAs(t, err, &crErr)
	assert.Equal(t, worklog.UserID("u1"), crErr.UserID)
	assert.ErrorIs(t, err, worklog.ErrStore)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, []span{{at(9, 0), at(12, 0)}}, closedSpans(mem.All()))
}

func TestEngine_ResolveAndApply_ValidationBeforeMutation(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	seed(t, mem, closed("", at(9, 0), at(12, 0)))

	_, err := engine.ResolveAndApply(context.Background(), "u1", closed("", at(11, 0), at(10, 0)), "")
	assert.ErrorIs(t, err, worklog.ErrValidation)
	assert.Equal(t, []span{{at(9, 0), at(12, 0)}}, closedSpans(mem.All()))
}

func TestEngine_ResolveAndApply_EditOfForeignRecordIsNotFound(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	other := closed("", at(9, 0), at(12, 0))
	other.UserID = "u2"
	seeded := seed(t, mem, other)

	_, err := engine.ResolveAndApply(context.Background(), "u1", closed("", at(10, 0), at(11, 0)), seeded[0].ID)
	var nfErr *worklog.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, string(seeded[0].ID), nfErr.ID)
}

// =============================================================================
// EDIT
// =============================================================================

func TestEngine_EditInterval_CapturesOriginalOnce(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	ctx := context.Background()
	seeded := seed(t, mem,
		closed("", at(9, 0), at(10, 0)),
		closed("", at(10, 0), at(12, 0)),
	)
	id := seeded[0].ID

	// First edit stretches into the neighbour, which shifts.
	newEnd := worklog.ClosedAt(at(11, 0))
	edited, err := engine.EditInterval(ctx, "u1", id, worklog.Edit{
		Patch:     worklog.Patch{End: &newEnd},
		Reason:    "forgot to stop",
		EditedBy:  "manager-1",
		IPAddress: "10.0.0.7",
	})
	require.NoError(t, err)
	assert.True(t, edited.Provenance.IsEdited)
	assert.Equal(t, at(9, 0), edited.Provenance.OriginalStart)
	assert.True(t, edited.Provenance.OriginalEnd.Equal(worklog.ClosedAt(at(10, 0))))
	assert.Equal(t, "10.0.0.7", edited.Provenance.EditIPAddress)
	assert.Equal(t, []span{
		{at(9, 0), at(11, 0)},
		{at(11, 0), at(12, 0)},
	}, closedSpans(mem.All()))

	// Second edit keeps the first snapshot.
	newStart := at(8, 30)
	edited, err = engine.EditInterval(ctx, "u1", id, worklog.Edit{
		Patch:    worklog.Patch{Start: &newStart},
		Reason:   "came early",
		EditedBy: "manager-2",
	})
	require.NoError(t, err)
	assert.Equal(t, at(9, 0), edited.Provenance.OriginalStart)
	assert.Equal(t, "manager-2", edited.Provenance.EditedBy)
	assert.Equal(t, "came early", edited.Provenance.EditReason)
}

func TestEngine_EditInterval_PunchCorrectionRetimesClockIn(t *testing.T) {
	engine, mem := newTestEngine(t, at(12, 0))
	ctx := context.Background()

	iv, err := engine.ClockIn(ctx, "u1", at(9, 10), closed("", at(0, 0), at(0, 1)))
	require.NoError(t, err)

	start := at(9, 0)
	_, err = engine.EditInterval(ctx, "u1", iv.ID, worklog.Edit{
		Patch:           worklog.Patch{Start: &start},
		Reason:          "badge reader down",
		EditedBy:        "manager-1",
		PunchCorrection: true,
	})
	require.NoError(t, err)

	punches, err := mem.FindPunchEvents(ctx, "u1", day())
	require.NoError(t, err)
	require.Len(t, punches, 1)
	assert.Equal(t, at(9, 0), punches[0].Timestamp)
	assert.True(t, punches[0].Edited)
	assert.Equal(t, "manager-1", punches[0].EditedBy)
}

func TestEngine_EditInterval_InvalidRangeLeavesStoreUntouched(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	seeded := seed(t, mem, closed("", at(9, 0), at(10, 0)))

	start := at(11, 0)
	_, err := engine.EditInterval(context.Background(), "u1", seeded[0].ID, worklog.Edit{Patch: worklog.Patch{Start: &start}})
	assert.ErrorIs(t, err, worklog.ErrValidation)

	got, err := mem.GetInterval(context.Background(), seeded[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Provenance.IsEdited)
}

func TestEngine_DeleteInterval(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	ctx := context.Background()
	seeded := seed(t, mem, closed("", at(9, 0), at(10, 0)))

	assert.ErrorIs(t, engine.DeleteInterval(ctx, "u2", seeded[0].ID), worklog.ErrNotFound)
	require.NoError(t, engine.DeleteInterval(ctx, "u1", seeded[0].ID))
	assert.Empty(t, mem.All())

	_, err := engine.GetInterval(ctx, "u1", seeded[0].ID)
	assert.True(t, worklog.IsNotFound(err))
}

// =============================================================================
// PUNCH CLOCK
// =============================================================================

func TestEngine_ClockInClockOut(t *testing.T) {
	engine, mem := newTestEngine(t, at(9, 0))
	ctx := context.Background()

	details := worklog.WorkInterval{ProjectCode: "P-1", Category: "dev", Content: "feature"}
	opened, err := engine.ClockIn(ctx, "u1", at(9, 0), details)
	require.NoError(t, err)
	assert.True(t, opened.IsOpen())
	assert.Equal(t, "P-1", opened.ProjectCode)

	status, err := engine.DeriveClockStatus(ctx, "u1", at(10, 0))
	require.NoError(t, err)
	assert.True(t, status.ClockedIn)

	closedIv, err := engine.ClockOut(ctx, "u1", at(17, 30))
	require.NoError(t, err)
	assert.Equal(t, opened.ID, closedIv.ID)
	end, ok := closedIv.End.Time()
	require.True(t, ok)
	assert.Equal(t, at(17, 30), end)

	status, err = engine.DeriveClockStatus(ctx, "u1", at(18, 0))
	require.NoError(t, err)
	assert.False(t, status.ClockedIn)
	assert.Len(t, mem.All(), 1)
}

func TestEngine_ClockOut_WithoutOpenInterval(t *testing.T) {
	engine, _ := newTestEngine(t, at(9, 0))

	_, err := engine.ClockOut(context.Background(), "u1", at(17, 0))
	assert.ErrorIs(t, err, worklog.ErrNotFound)
}

func TestEngine_ClockOut_BeforeClockInRejected(t *testing.T) {
	engine, mem := newTestEngine(t, at(9, 0))
	ctx := context.Background()
	_, err := engine.ClockIn(ctx, "u1", at(9, 0), worklog.WorkInterval{})
	require.NoError(t, err)

	_, err = engine.ClockOut(ctx, "u1", at(8, 0))
	assert.ErrorIs(t, err, worklog.ErrValidation)

	punches, err := mem.FindPunchEvents(ctx, "u1", day())
	require.NoError(t, err)
	assert.Len(t, punches, 1, "rejected clock-out records no punch")
}

func TestEngine_ClockIn_TruncatesPreviousOpenInterval(t *testing.T) {
	engine, mem := newTestEngine(t, at(13, 0))
	ctx := context.Background()

	first, err := engine.ClockIn(ctx, "u1", at(9, 0), worklog.WorkInterval{ProjectCode: "P-1"})
	require.NoError(t, err)
	_, err = engine.ClockIn(ctx, "u1", at(13, 0), worklog.WorkInterval{ProjectCode: "P-2"})
	require.NoError(t, err)

	got, err := mem.GetInterval(ctx, first.ID)
	require.NoError(t, err)
	end, ok := got.End.Time()
	require.True(t, ok)
	assert.Equal(t, at(13, 0), end)

	open, err := mem.FindOpenIntervals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "P-2", open[0].ProjectCode)
}

func TestEngine_ClockIn_ClosesOpenIntervalFromPreviousDay(t *testing.T) {
	// GIVEN: a clock-in yesterday 22:00 that was never closed
	engine, mem := newTestEngine(t, at(10, 0))
	ctx := context.Background()
	first, err := engine.ClockIn(ctx, "u1", at(22, 0).AddDate(0, 0, -1), worklog.WorkInterval{ProjectCode: "P-1"})
	require.NoError(t, err)

	// WHEN: clocking in again this morning
	_, err = engine.ClockIn(ctx, "u1", at(9, 0), worklog.WorkInterval{ProjectCode: "P-2"})
	require.NoError(t, err)

	// THEN: yesterday's interval ends at the new clock-in
	got, err := mem.GetInterval(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.End.Equal(worklog.ClosedAt(at(9, 0))))

	open, err := mem.FindOpenIntervals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "P-2", open[0].ProjectCode)

	// AND: clocking out leaves nothing open
	_, err = engine.ClockOut(ctx, "u1", at(10, 0))
	require.NoError(t, err)
	open, err = mem.FindOpenIntervals(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestEngine_ClockIn_PreviousDayTruncationClamped(t *testing.T) {
	// GIVEN: yesterday's open interval and a closed entry this morning
	engine, mem := newTestEngine(t, at(10, 0))
	ctx := context.Background()
	first, err := engine.ClockIn(ctx, "u1", at(22, 0).AddDate(0, 0, -1), worklog.WorkInterval{})
	require.NoError(t, err)
	seed(t, mem, closed("", at(7, 0), at(8, 0)))

	// WHEN
	_, err = engine.ClockIn(ctx, "u1", at(9, 0), worklog.WorkInterval{})
	require.NoError(t, err)

	// THEN: the open interval stops where the closed entry starts
	got, err := mem.GetInterval(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.End.Equal(worklog.ClosedAt(at(7, 0))))
}

func TestEngine_ClockOut_SameSecondRejected(t *testing.T) {
	engine, mem := newTestEngine(t, at(9, 0))
	ctx := context.Background()
	_, err := engine.ClockIn(ctx, "u1", at(9, 0).Add(100*time.Millisecond), worklog.WorkInterval{})
	require.NoError(t, err)

	_, err = engine.ClockOut(ctx, "u1", at(9, 0).Add(900*time.Millisecond))
	assert.ErrorIs(t, err, worklog.ErrValidation)

	open, err := mem.FindOpenIntervals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].Start.Equal(at(9, 0)))
}

func TestEngine_DeriveClockStatus_OvernightShift(t *testing.T) {
	// GIVEN: clock-in yesterday 22:00, nothing since
	// WHEN: asked at 03:00
	// THEN: still clocked in
	engine, _ := newTestEngine(t, at(3, 0))
	ctx := context.Background()
	_, err := engine.ClockIn(ctx, "u1", at(22, 0).AddDate(0, 0, -1), worklog.WorkInterval{})
	require.NoError(t, err)

	status, err := engine.DeriveClockStatus(ctx, "u1", at(3, 0))
	require.NoError(t, err)
	assert.True(t, status.ClockedIn)
	assert.True(t, status.FromPrevDay)

	status, err = engine.DeriveClockStatus(ctx, "u1", at(9, 0))
	require.NoError(t, err)
	assert.False(t, status.ClockedIn)
}

// =============================================================================
// MERGE
// =============================================================================

func TestEngine_MergeDay(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	ctx := context.Background()
	seed(t, mem,
		closed("", at(9, 0), at(9, 30)),
		closed("", at(9, 31), at(10, 0)),
		withSignature(closed("", at(10, 0), at(11, 0)), "P-2", "meeting", "planning"),
		closed("", at(11, 0), at(11, 30)),
	)

	previews, err := engine.PreviewMerge(ctx, "u1", day())
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, 2, previews[0].Count)
	assert.Equal(t, time.Hour, previews[0].TotalDuration)
	assert.Len(t, mem.All(), 4, "preview does not write")

	reports, err := engine.MergeDay(ctx, "u1", day())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].OriginalCount)
	assert.NotEmpty(t, reports[0].Merged.ID)

	assert.Equal(t, []span{
		{at(9, 0), at(10, 0)},
		{at(10, 0), at(11, 0)},
		{at(11, 0), at(11, 30)},
	}, closedSpans(mem.All()))

	// Idempotent: a second run finds nothing.
	reports, err = engine.MergeDay(ctx, "u1", day())
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Len(t, mem.All(), 3)
}

func TestEngine_MergeDay_RollsBackOnFailure(t *testing.T) {
	engine, mem := newTestEngine(t, at(18, 0))
	seed(t, mem,
		closed("", at(9, 0), at(9, 30)),
		closed("", at(9, 30), at(10, 0)),
	)
	mem.FailOn["DeleteInterval"] = errors.New("locked")

	_, err := engine.MergeDay(context.Background(), "u1", day())
	assert.ErrorIs(t, err, worklog.ErrStore)
	assert.Len(t, mem.All(), 2)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestEngine_SummarizeDay(t *testing.T) {
	engine, mem := newTestEngine(t, at(20, 0))
	ctx := context.Background()
	seed(t, mem,
		closed("", at(9, 0), at(18, 0)),
		closed("", at(18, 0), at(19, 0)),
		open("", at(19, 30)),
	)

	summary, err := engine.SummarizeDay(ctx, "u1", day())
	require.NoError(t, err)
	assert.Len(t, summary.Intervals, 2)
	assert.Equal(t, 1, summary.OpenIntervals)
	assert.Equal(t, worklog.WorkTime{NormalMinutes: 480, OvertimeMinutes: 60}, summary.Total)
	assert.Equal(t, "8", summary.NormalHours.String())
	assert.Equal(t, "1", summary.OvertimeHours.String())
}

func TestEngine_ComputeWorkTime_UsesStoredSchedule(t *testing.T) {
	engine, mem := newTestEngine(t, at(20, 0))
	ctx := context.Background()

	cfg := worklog.DefaultSchedule()
	cfg.MinimumOvertimeUnit = 15
	require.NoError(t, mem.SaveDailyScheduleConfig(ctx, cfg))

	got, err := engine.ComputeWorkTime(ctx, "18:00", "18:40")
	require.NoError(t, err)
	assert.Equal(t, 45, got.OvertimeMinutes)
}

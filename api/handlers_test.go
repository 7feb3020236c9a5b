/*
handlers_test.go - HTTP tests for the time clock API

Tests for:
- Manual entries reconciled by the engine (split, validation)
- Punch clock flow and status
- Edit provenance from X-Actor-ID and the client IP
- Merge preview / merge, day summary, calculator, schedule
- Error mapping (400 / 404)
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timeclock/store/sqlite"
	"github.com/warp/timeclock/worklog"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func at(hh, mm int) time.Time {
	return time.Date(2025, time.March, 10, hh, mm, 0, 0, time.UTC)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterAt(t, at(18, 0))
}

func newTestRouterAt(t *testing.T, now time.Time) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := worklog.NewEngine(store, store, worklog.WithClock(func() time.Time { return now }))
	return NewRouter(NewHandler(engine, store), []string{"*"})
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func entry(from, to time.Time) IntervalRequest {
	return IntervalRequest{
		ProjectCode: "P-1",
		Category:    "dev",
		Content:     "coding",
		Start:       from,
		End:         &to,
	}
}

// =============================================================================
// INTERVALS
// =============================================================================

func TestCreateInterval_SplitsEnclosingInterval(t *testing.T) {
	router := newTestRouter(t)

	// GIVEN: [09:00,12:00)
	rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", entry(at(9, 0), at(12, 0)), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: a meeting [10:00,11:00) is entered
	meeting := entry(at(10, 0), at(11, 0))
	meeting.Category = "meeting"
	rec = do(t, router, http.MethodPost, "/api/users/u1/intervals", meeting, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: the day reads coding / meeting / coding
	rec = do(t, router, http.MethodGet, "/api/users/u1/intervals?date=2025-03-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ivs := decode[[]IntervalDTO](t, rec)
	require.Len(t, ivs, 3)
	assert.Equal(t, []string{"dev", "meeting", "dev"}, []string{ivs[0].Category, ivs[1].Category, ivs[2].Category})
	require.NotNil(t, ivs[0].End)
	assert.True(t, ivs[0].End.Equal(at(10, 0)))
	assert.True(t, ivs[2].Start.Equal(at(11, 0)))
}

func TestCreateInterval_InvalidRange(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", entry(at(11, 0), at(10, 0)), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation", resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok, "details: %v", resp.Details)
	assert.Equal(t, "end", details["field"])
}

func TestCreateInterval_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/intervals", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInterval_ForeignOrMissingIsNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", entry(at(9, 0), at(10, 0)), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[IntervalDTO](t, rec)

	rec = do(t, router, http.MethodGet, "/api/users/u1/intervals/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/users/u2/intervals/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/users/u1/intervals/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateInterval_RecordsProvenance(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", entry(at(9, 0), at(10, 0)), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[IntervalDTO](t, rec)
	assert.Nil(t, created.Provenance)

	end := at(10, 30)
	rec = do(t, router, http.MethodPut, "/api/users/u1/intervals/"+created.ID,
		EditIntervalRequest{End: &end, Reason: "stayed for review"},
		map[string]string{ActorHeader: "manager-1", "X-Real-IP": "203.0.113.9"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	edited := decode[IntervalDTO](t, rec)
	require.NotNil(t, edited.Provenance)
	assert.Equal(t, "manager-1", edited.Provenance.EditedBy)
	assert.Equal(t, "203.0.113.9", edited.Provenance.EditIPAddress)
	assert.Equal(t, "stayed for review", edited.Provenance.EditReason)
	require.NotNil(t, edited.Provenance.OriginalEnd)
	assert.True(t, edited.Provenance.OriginalEnd.Equal(at(10, 0)))
	require.NotNil(t, edited.End)
	assert.True(t, edited.End.Equal(at(10, 30)))
}

func TestDeleteInterval(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", entry(at(9, 0), at(10, 0)), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[IntervalDTO](t, rec)

	rec = do(t, router, http.MethodDelete, "/api/users/u1/intervals/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/users/u1/intervals/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PUNCH CLOCK
// =============================================================================

func TestClockInClockOut(t *testing.T) {
	router := newTestRouter(t)

	in := at(9, 0)
	rec := do(t, router, http.MethodPost, "/api/users/u1/clock-in", ClockInRequest{At: &in, ProjectCode: "P-1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[IntervalDTO](t, rec)
	assert.True(t, opened.IsOpen)
	assert.Nil(t, opened.End)

	rec = do(t, router, http.MethodGet, "/api/users/u1/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[ClockStatusDTO](t, rec)
	assert.True(t, status.ClockedIn)
	require.NotNil(t, status.LastClockIn)
	assert.Equal(t, "IN", status.LastClockIn.Type)

	// No body: clock out at the engine's now (18:00).
	rec = do(t, router, http.MethodPost, "/api/users/u1/clock-out", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closedIv := decode[IntervalDTO](t, rec)
	assert.Equal(t, opened.ID, closedIv.ID)
	require.NotNil(t, closedIv.End)
	assert.True(t, closedIv.End.Equal(at(18, 0)))

	rec = do(t, router, http.MethodGet, "/api/users/u1/status", nil, nil)
	status = decode[ClockStatusDTO](t, rec)
	assert.False(t, status.ClockedIn)
}

func TestGetStatus_OvernightShift(t *testing.T) {
	// GIVEN: a shift clocked in yesterday 22:00, asked at 03:00
	router := newTestRouterAt(t, at(3, 0))
	in := at(22, 0).AddDate(0, 0, -1)
	rec := do(t, router, http.MethodPost, "/api/users/u1/clock-in", ClockInRequest{At: &in}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN
	rec = do(t, router, http.MethodGet, "/api/users/u1/status", nil, nil)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[ClockStatusDTO](t, rec)
	assert.True(t, status.ClockedIn)
	assert.True(t, status.FromPrevDay)
	require.NotNil(t, status.LastClockIn)
	assert.True(t, status.LastClockIn.Timestamp.Equal(in))
	assert.Nil(t, status.LastClockOut)

	// AND: another user has no state
	rec = do(t, router, http.MethodGet, "/api/users/u2/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	other := decode[ClockStatusDTO](t, rec)
	assert.False(t, other.ClockedIn)
	assert.Nil(t, other.LastClockIn)
}

func TestClockOut_WithoutClockIn(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/clock-out", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// MERGE & SUMMARY
// =============================================================================

func TestMerge_PreviewThenApply(t *testing.T) {
	router := newTestRouter(t)

	for _, e := range []IntervalRequest{entry(at(9, 0), at(9, 30)), entry(at(9, 31), at(10, 15))} {
		rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", e, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, router, http.MethodGet, "/api/users/u1/merge/preview?date=2025-03-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	previews := decode[[]MergePreviewDTO](t, rec)
	require.Len(t, previews, 1)
	assert.Equal(t, 2, previews[0].Count)
	assert.Equal(t, 75, previews[0].TotalMinutes)

	rec = do(t, router, http.MethodPost, "/api/users/u1/merge?date=2025-03-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reports := decode[[]MergeReportDTO](t, rec)
	require.Len(t, reports, 1)
	assert.Len(t, reports[0].OriginalIDs, 2)

	rec = do(t, router, http.MethodGet, "/api/users/u1/intervals?date=2025-03-10", nil, nil)
	ivs := decode[[]IntervalDTO](t, rec)
	require.Len(t, ivs, 1)
	assert.True(t, ivs[0].Start.Equal(at(9, 0)))
	require.NotNil(t, ivs[0].End)
	assert.True(t, ivs[0].End.Equal(at(10, 15)))
}

func TestMerge_InvalidDate(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/merge?date=10-03-2025", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSummary(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users/u1/intervals", entry(at(9, 0), at(19, 0)), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/users/u1/summary?date=2025-03-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[DaySummaryDTO](t, rec)
	assert.Equal(t, "2025-03-10", summary.Date)
	assert.Equal(t, 480, summary.NormalMinutes)
	assert.Equal(t, 60, summary.OvertimeMinutes)
	assert.Equal(t, "8", summary.NormalHours.String())
	require.Len(t, summary.Intervals, 1)
}

// =============================================================================
// CALCULATOR & SCHEDULE
// =============================================================================

func TestComputeWorkTime(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/worktime/compute", ComputeRequest{Start: "09:00", End: "18:40"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wt := decode[worklog.WorkTime](t, rec)
	assert.Equal(t, 480, wt.NormalMinutes)
	assert.Equal(t, 30, wt.OvertimeMinutes)

	rec = do(t, router, http.MethodPost, "/api/worktime/compute", ComputeRequest{Start: "25:00", End: "18:00"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedule_UpdateAndRead(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/schedule", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, worklog.DefaultSchedule(), decode[worklog.DailyScheduleConfig](t, rec))

	cfg := worklog.DefaultSchedule()
	cfg.MinimumOvertimeUnit = 0
	rec = do(t, router, http.MethodPut, "/api/schedule", cfg, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cfg.MinimumOvertimeUnit = 15
	rec = do(t, router, http.MethodPut, "/api/schedule", cfg, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/worktime/compute", ComputeRequest{Start: "18:00", End: "18:40"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45, decode[worklog.WorkTime](t, rec).OvertimeMinutes)
}

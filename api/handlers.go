/*
handlers.go - HTTP API handlers for the time clock

PURPOSE:
  Exposes the worklog engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every write to the engine so that the
  no-overlap invariant is enforced in one place.

ENDPOINTS:
  Punch clock:
    POST   /api/users/{userID}/clock-in        Open an interval
    POST   /api/users/{userID}/clock-out       Close the open interval
    GET    /api/users/{userID}/status          Clocked in / out

  Intervals:
    GET    /api/users/{userID}/intervals?date= Day listing
    POST   /api/users/{userID}/intervals       Manual entry
    GET    /api/users/{userID}/intervals/{id}  Single interval
    PUT    /api/users/{userID}/intervals/{id}  Edit with provenance
    DELETE /api/users/{userID}/intervals/{id}  Delete

  Merge:
    GET    /api/users/{userID}/merge/preview?date=
    POST   /api/users/{userID}/merge?date=

  Work time:
    GET    /api/users/{userID}/summary?date=   Normal / overtime totals
    POST   /api/worktime/compute               Calculator on "HH:mm" pair
    GET    /api/schedule                       Daily schedule
    PUT    /api/schedule                       Replace daily schedule

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, malformed "HH:mm", invalid input
  - 404: Interval not found (or owned by another user)
  - 500: Store and conflict-resolution failures (logged with request id)

SECURITY NOTE:
  No authentication. The acting editor is taken from the X-Actor-ID
  header as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/timeclock/worklog"
)

// ActorHeader carries the id of the user performing an edit.
const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ScheduleStore reads and replaces the daily schedule.
type ScheduleStore interface {
	worklog.ScheduleSource
	SaveDailyScheduleConfig(ctx context.Context, cfg worklog.DailyScheduleConfig) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *worklog.Engine
	Schedules ScheduleStore
}

// NewHandler creates a new handler.
func NewHandler(engine *worklog.Engine, schedules ScheduleStore) *Handler {
	return &Handler{Engine: engine, Schedules: schedules}
}

// =============================================================================
// PUNCH CLOCK
// =============================================================================

// ClockIn opens an interval for the user.
// POST /api/users/{userID}/clock-in
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockInRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at := h.Engine.Now()
	if req.At != nil {
		at = *req.At
	}
	details := worklog.WorkInterval{
		ProjectCode: req.ProjectCode,
		ProjectName: req.ProjectName,
		Category:    req.Category,
		Content:     req.Content,
	}

	iv, err := h.Engine.ClockIn(r.Context(), userID(r), at, details)
	if err != nil {
		writeDomainError(w, r, "Failed to clock in", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntervalDTO(iv))
}

// ClockOut closes the user's open interval.
// POST /api/users/{userID}/clock-out
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req ClockOutRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at := h.Engine.Now()
	if req.At != nil {
		at = *req.At
	}

	iv, err := h.Engine.ClockOut(r.Context(), userID(r), at)
	if err != nil {
		writeDomainError(w, r, "Failed to clock out", err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalDTO(iv))
}

// GetStatus reports whether the user is clocked in.
// GET /api/users/{userID}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Engine.DeriveClockStatus(r.Context(), userID(r), h.Engine.Now())
	if err != nil {
		writeDomainError(w, r, "Failed to derive clock status", err)
		return
	}
	writeJSON(w, http.StatusOK, ClockStatusDTO{
		ClockedIn:    status.ClockedIn,
		LastClockIn:  toPunchDTO(status.LastClockIn),
		LastClockOut: toPunchDTO(status.LastClockOut),
		FromPrevDay:  status.FromPrevDay,
	})
}

// =============================================================================
// INTERVALS
// =============================================================================

// ListIntervals returns the user's intervals of a day.
// GET /api/users/{userID}/intervals?date=YYYY-MM-DD
func (h *Handler) ListIntervals(w http.ResponseWriter, r *http.Request) {
	day, err := h.dayParam(r)
	if err != nil {
		writeDomainError(w, r, "Invalid date", err)
		return
	}

	ivs, err := h.Engine.ListDay(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, r, "Failed to list intervals", err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalDTOs(ivs))
}

// CreateInterval inserts a manual entry, reconciling overlaps.
// POST /api/users/{userID}/intervals
func (h *Handler) CreateInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	iv, err := h.Engine.ResolveAndApply(r.Context(), userID(r), req.toInterval(), "")
	if err != nil {
		writeDomainError(w, r, "Failed to create interval", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntervalDTO(iv))
}

// GetInterval returns one of the user's intervals.
// GET /api/users/{userID}/intervals/{id}
func (h *Handler) GetInterval(w http.ResponseWriter, r *http.Request) {
	iv, err := h.Engine.GetInterval(r.Context(), userID(r), intervalID(r))
	if err != nil {
		writeDomainError(w, r, "Failed to get interval", err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalDTO(iv))
}

// UpdateInterval edits an interval and records who changed it.
// PUT /api/users/{userID}/intervals/{id}
func (h *Handler) UpdateInterval(w http.ResponseWriter, r *http.Request) {
	var req EditIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	edit := worklog.Edit{
		Patch:           req.toPatch(),
		Reason:          req.Reason,
		EditedBy:        r.Header.Get(ActorHeader),
		IPAddress:       clientIP(r),
		PunchCorrection: req.PunchCorrection,
	}
	iv, err := h.Engine.EditInterval(r.Context(), userID(r), intervalID(r), edit)
	if err != nil {
		writeDomainError(w, r, "Failed to update interval", err)
		return
	}
	writeJSON(w, http.StatusOK, toIntervalDTO(iv))
}

// DeleteInterval removes one of the user's intervals.
// DELETE /api/users/{userID}/intervals/{id}
func (h *Handler) DeleteInterval(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteInterval(r.Context(), userID(r), intervalID(r)); err != nil {
		writeDomainError(w, r, "Failed to delete interval", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MERGE
// =============================================================================

// PreviewMerge lists the clusters a merge of the day would produce.
// GET /api/users/{userID}/merge/preview?date=YYYY-MM-DD
func (h *Handler) PreviewMerge(w http.ResponseWriter, r *http.Request) {
	day, err := h.dayParam(r)
	if err != nil {
		writeDomainError(w, r, "Invalid date", err)
		return
	}

	previews, err := h.Engine.PreviewMerge(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, r, "Failed to preview merge", err)
		return
	}

	dtos := make([]MergePreviewDTO, len(previews))
	for i, p := range previews {
		dtos[i] = MergePreviewDTO{
			ProjectCode:  p.Signature.ProjectCode,
			Category:     p.Signature.Category,
			Content:      p.Signature.Content,
			Count:        p.Count,
			Start:        p.Start,
			End:          p.End,
			TotalMinutes: int(p.TotalDuration / time.Minute),
			IntervalIDs:  idStrings(p.IntervalIDs),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Merge merges the day's same-signature fragments.
// POST /api/users/{userID}/merge?date=YYYY-MM-DD
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	day, err := h.dayParam(r)
	if err != nil {
		writeDomainError(w, r, "Invalid date", err)
		return
	}

	reports, err := h.Engine.MergeDay(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, r, "Failed to merge intervals", err)
		return
	}

	dtos := make([]MergeReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = MergeReportDTO{
			OriginalCount: rep.OriginalCount,
			OriginalIDs:   idStrings(rep.OriginalIDs),
			Merged:        toIntervalDTO(rep.Merged),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WORK TIME
// =============================================================================

// GetSummary returns normal and overtime totals for a day.
// GET /api/users/{userID}/summary?date=YYYY-MM-DD
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	day, err := h.dayParam(r)
	if err != nil {
		writeDomainError(w, r, "Invalid date", err)
		return
	}

	summary, err := h.Engine.SummarizeDay(r.Context(), userID(r), day)
	if err != nil {
		writeDomainError(w, r, "Failed to summarize day", err)
		return
	}

	dto := DaySummaryDTO{
		Date:            summary.Day.String(),
		Intervals:       make([]IntervalWorkTimeDTO, len(summary.Intervals)),
		NormalMinutes:   summary.Total.NormalMinutes,
		OvertimeMinutes: summary.Total.OvertimeMinutes,
		NormalHours:     summary.NormalHours,
		OvertimeHours:   summary.OvertimeHours,
		OpenIntervals:   summary.OpenIntervals,
	}
	for i, iw := range summary.Intervals {
		dto.Intervals[i] = IntervalWorkTimeDTO{
			Interval:        toIntervalDTO(iw.Interval),
			NormalMinutes:   iw.NormalMinutes,
			OvertimeMinutes: iw.OvertimeMinutes,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// ComputeWorkTime runs the calculator on a pair of "HH:mm" clock times.
// POST /api/worktime/compute
func (h *Handler) ComputeWorkTime(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wt, err := h.Engine.ComputeWorkTime(r.Context(), req.Start, req.End)
	if err != nil {
		writeDomainError(w, r, "Failed to compute work time", err)
		return
	}
	writeJSON(w, http.StatusOK, wt)
}

// GetSchedule returns the daily schedule.
// GET /api/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Schedules.LoadDailyScheduleConfig(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to load schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateSchedule validates and replaces the daily schedule.
// PUT /api/schedule
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var cfg worklog.DailyScheduleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Schedules.SaveDailyScheduleConfig(r.Context(), cfg); err != nil {
		writeDomainError(w, r, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// =============================================================================
// HELPERS
// =============================================================================

func userID(r *http.Request) worklog.UserID {
	return worklog.UserID(chi.URLParam(r, "userID"))
}

func intervalID(r *http.Request) worklog.IntervalID {
	return worklog.IntervalID(chi.URLParam(r, "id"))
}

// dayParam reads ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) dayParam(r *http.Request) (worklog.DayRange, error) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return h.Engine.Day(h.Engine.Now()), nil
	}
	return worklog.ParseDay(date, h.Engine.Location())
}

// decodeOptional decodes a JSON body that may be empty.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// clientIP strips the port that RemoteAddr carries unless RealIP rewrote it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps worklog errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case worklog.IsClientError(err):
		resp := ErrorResponse{Error: message, Code: "validation", Details: err.Error()}
		var vErr *worklog.ValidationError
		if errors.As(err, &vErr) && vErr.Field != "" {
			resp.Details = map[string]string{"field": vErr.Field, "message": vErr.Message}
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case worklog.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: message, Code: "not_found", Details: err.Error()})
	default:
		log.Printf("[%s] %s: %v", middleware.GetReqID(r.Context()), message, err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

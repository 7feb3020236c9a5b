/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the worklog domain model from the external API contract. In particular
  the domain's End value (open or closed) is rendered as a nullable "end"
  timestamp.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Intervals:
    IntervalDTO, ProvenanceDTO, IntervalRequest, EditIntervalRequest

  Punch clock:
    ClockInRequest, ClockOutRequest, ClockStatusDTO, PunchDTO

  Merge:
    MergePreviewDTO, MergeReportDTO

  Work time:
    ComputeRequest, DaySummaryDTO, IntervalWorkTimeDTO

VALIDATION:
  Validation is done by the worklog engine, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - worklog/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timeclock/worklog"
)

// =============================================================================
// INTERVALS
// =============================================================================

// IntervalDTO represents a work interval in API responses.
type IntervalDTO struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	ProjectCode string         `json:"project_code"`
	ProjectName string         `json:"project_name,omitempty"`
	Category    string         `json:"category"`
	Content     string         `json:"content"`
	Start       time.Time      `json:"start"`
	End         *time.Time     `json:"end"`
	IsOpen      bool           `json:"is_open"`
	IsOvertime  bool           `json:"is_overtime"`
	Provenance  *ProvenanceDTO `json:"provenance,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ProvenanceDTO is present only on edited intervals.
type ProvenanceDTO struct {
	EditReason    string     `json:"edit_reason"`
	EditedBy      string     `json:"edited_by"`
	EditedAt      time.Time  `json:"edited_at"`
	EditIPAddress string     `json:"edit_ip_address,omitempty"`
	OriginalStart time.Time  `json:"original_start"`
	OriginalEnd   *time.Time `json:"original_end"`
}

// IntervalRequest is the body of POST /api/users/{userID}/intervals.
// A missing end creates an open interval.
type IntervalRequest struct {
	ProjectCode string     `json:"project_code"`
	ProjectName string     `json:"project_name"`
	Category    string     `json:"category"`
	Content     string     `json:"content"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end"`
	IsOvertime  bool       `json:"is_overtime"`
}

// EditIntervalRequest is the body of PUT /api/users/{userID}/intervals/{id}.
// Only non-null fields change.
type EditIntervalRequest struct {
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	ProjectCode *string    `json:"project_code"`
	ProjectName *string    `json:"project_name"`
	Category    *string    `json:"category"`
	Content     *string    `json:"content"`
	IsOvertime  *bool      `json:"is_overtime"`

	Reason          string `json:"reason"`
	PunchCorrection bool   `json:"punch_correction"`
}

// =============================================================================
// PUNCH CLOCK
// =============================================================================

// ClockInRequest opens an interval at At (now if omitted).
type ClockInRequest struct {
	At          *time.Time `json:"at"`
	ProjectCode string     `json:"project_code"`
	ProjectName string     `json:"project_name"`
	Category    string     `json:"category"`
	Content     string     `json:"content"`
}

type ClockOutRequest struct {
	At *time.Time `json:"at"`
}

// PunchDTO represents a punch event.
type PunchDTO struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Edited    bool      `json:"edited"`
	EditedBy  string    `json:"edited_by,omitempty"`
}

// ClockStatusDTO is the response of GET /api/users/{userID}/status.
type ClockStatusDTO struct {
	ClockedIn    bool      `json:"clocked_in"`
	LastClockIn  *PunchDTO `json:"last_clock_in"`
	LastClockOut *PunchDTO `json:"last_clock_out"`
	FromPrevDay  bool      `json:"from_previous_day"`
}

// =============================================================================
// MERGE
// =============================================================================

// MergePreviewDTO describes one cluster a merge would produce.
type MergePreviewDTO struct {
	ProjectCode  string    `json:"project_code"`
	Category     string    `json:"category"`
	Content      string    `json:"content"`
	Count        int       `json:"count"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TotalMinutes int       `json:"total_minutes"`
	IntervalIDs  []string  `json:"interval_ids"`
}

// MergeReportDTO describes one cluster a merge produced.
type MergeReportDTO struct {
	OriginalCount int         `json:"original_count"`
	OriginalIDs   []string    `json:"original_ids"`
	Merged        IntervalDTO `json:"merged"`
}

// =============================================================================
// WORK TIME
// =============================================================================

// ComputeRequest is the body of POST /api/worktime/compute.
type ComputeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type IntervalWorkTimeDTO struct {
	Interval        IntervalDTO `json:"interval"`
	NormalMinutes   int         `json:"normal_minutes"`
	OvertimeMinutes int         `json:"overtime_minutes"`
}

// DaySummaryDTO is the response of GET /api/users/{userID}/summary.
type DaySummaryDTO struct {
	Date            string                `json:"date"`
	Intervals       []IntervalWorkTimeDTO `json:"intervals"`
	NormalMinutes   int                   `json:"normal_minutes"`
	OvertimeMinutes int                   `json:"overtime_minutes"`
	NormalHours     decimal.Decimal       `json:"normal_hours"`
	OvertimeHours   decimal.Decimal       `json:"overtime_hours"`
	OpenIntervals   int                   `json:"open_intervals"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toIntervalDTO(iv worklog.WorkInterval) IntervalDTO {
	dto := IntervalDTO{
		ID:          string(iv.ID),
		UserID:      string(iv.UserID),
		ProjectCode: iv.ProjectCode,
		ProjectName: iv.ProjectName,
		Category:    iv.Category,
		Content:     iv.Content,
		Start:       iv.Start,
		End:         iv.End.Ptr(),
		IsOpen:      iv.IsOpen(),
		IsOvertime:  iv.IsOvertime,
		CreatedAt:   iv.CreatedAt,
		UpdatedAt:   iv.UpdatedAt,
	}
	if p := iv.Provenance; p.IsEdited {
		dto.Provenance = &ProvenanceDTO{
			EditReason:    p.EditReason,
			EditedBy:      p.EditedBy,
			EditedAt:      p.EditedAt,
			EditIPAddress: p.EditIPAddress,
			OriginalStart: p.OriginalStart,
			OriginalEnd:   p.OriginalEnd.Ptr(),
		}
	}
	return dto
}

func toIntervalDTOs(ivs []worklog.WorkInterval) []IntervalDTO {
	dtos := make([]IntervalDTO, len(ivs))
	for i, iv := range ivs {
		dtos[i] = toIntervalDTO(iv)
	}
	return dtos
}

func toPunchDTO(ev *worklog.PunchEvent) *PunchDTO {
	if ev == nil {
		return nil
	}
	return &PunchDTO{
		ID:        string(ev.ID),
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Edited:    ev.Edited,
		EditedBy:  ev.EditedBy,
	}
}

func idStrings(ids []worklog.IntervalID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// toPatch converts the request into a domain patch.
func (r EditIntervalRequest) toPatch() worklog.Patch {
	p := worklog.Patch{
		Start:       r.Start,
		ProjectCode: r.ProjectCode,
		ProjectName: r.ProjectName,
		Category:    r.Category,
		Content:     r.Content,
		IsOvertime:  r.IsOvertime,
	}
	if r.End != nil {
		end := worklog.ClosedAt(*r.End)
		p.End = &end
	}
	return p
}

func (r IntervalRequest) toInterval() worklog.WorkInterval {
	return worklog.WorkInterval{
		ProjectCode: r.ProjectCode,
		ProjectName: r.ProjectName,
		Category:    r.Category,
		Content:     r.Content,
		Start:       r.Start,
		End:         worklog.EndFromPtr(r.End),
		IsOvertime:  r.IsOvertime,
	}
}

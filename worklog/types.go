/*
Package worklog provides the work-interval reconciliation engine.

PURPOSE:
  Keeps a user's per-day work intervals free of illegal overlaps, merges
  fragmented duplicates back together, derives normal and overtime minutes
  from a daily schedule and answers "is this user clocked in right now?".

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkInterval: a span of work on a project/category with optional end
  - End: Closed{at} | Open, the interval's end as an explicit sum type
  - Provenance: single last-edit metadata plus the original snapshot
  - PunchEvent: raw IN/OUT clock events
  - DayRange: [local midnight, next local midnight)

DESIGN PRINCIPLES:
  1. Single enforcement point: every write path goes through Resolver
  2. Atomicity: each reconciliation runs inside one TxStore.WithTx call
  3. Single writer: at most one in-flight reconciliation per user is assumed

SEE ALSO:
  - resolver.go: Conflict resolution (insert / edit)
  - merger.go: Overlap merge of same-signature intervals
  - worktime.go: Normal / overtime calculator
  - clockstate.go: Clock-in status derivation
*/
package worklog

import (
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID     string
	IntervalID string
	PunchID    string
)

// =============================================================================
// END - Closed{at} | Open
// =============================================================================

// Precision is the resolution at which interval bounds and punches are kept.
const Precision = time.Second

// End is the end of a work interval. The zero value is Open.
type End struct {
	at     time.Time
	closed bool
}

// OpenEnd returns an End representing ongoing work.
func OpenEnd() End { return End{} }

// ClosedAt returns an End fixed at t.
func ClosedAt(t time.Time) End { return End{at: t, closed: true} }

// EndFromPtr maps nil to Open and a non-nil time to Closed.
func EndFromPtr(t *time.Time) End {
	if t == nil {
		return OpenEnd()
	}
	return ClosedAt(*t)
}

func (e End) IsOpen() bool   { return !e.closed }
func (e End) IsClosed() bool { return e.closed }

// Time returns the end instant and whether the end is closed.
func (e End) Time() (time.Time, bool) { return e.at, e.closed }

// Ptr returns nil for Open, for storage and JSON layers that use nullable columns.
func (e End) Ptr() *time.Time {
	if !e.closed {
		return nil
	}
	t := e.at
	return &t
}

// Through returns the effective end: the closed instant, or now for an open end.
func (e End) Through(now time.Time) time.Time {
	if e.closed {
		return e.at
	}
	return now
}

func (e End) Equal(other End) bool {
	if e.closed != other.closed {
		return false
	}
	return !e.closed || e.at.Equal(other.at)
}

func (e End) String() string {
	if !e.closed {
		return "open"
	}
	return e.at.Format(time.RFC3339)
}

// =============================================================================
// WORK INTERVAL
// =============================================================================

type WorkInterval struct {
	ID          IntervalID
	UserID      UserID
	ProjectCode string
	ProjectName string
	Category    string
	Content     string
	Start       time.Time
	End         End
	IsOvertime  bool // set by the caller, never derived here
	Provenance  Provenance
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Provenance is the last-edit metadata of an interval. OriginalStart and
// OriginalEnd are captured on the first edit only.
type Provenance struct {
	IsEdited      bool
	EditReason    string
	EditedBy      string
	EditedAt      time.Time
	EditIPAddress string
	OriginalStart time.Time
	OriginalEnd   End
}

// Signature is the grouping key used by the merger.
type Signature struct {
	ProjectCode string
	Category    string
	Content     string
}

func (iv WorkInterval) Signature() Signature {
	return Signature{
		ProjectCode: iv.ProjectCode,
		Category:    iv.Category,
		Content:     strings.TrimSpace(iv.Content),
	}
}

func (iv WorkInterval) IsOpen() bool { return iv.End.IsOpen() }

// Duration returns the closed length, or the length up to now for an open interval.
func (iv WorkInterval) Duration(now time.Time) time.Duration {
	d := iv.End.Through(now).Sub(iv.Start)
	if d < 0 {
		return 0
	}
	return d
}

// Validate checks the time range. Open intervals only need a start.
func (iv WorkInterval) Validate() error {
	if iv.Start.IsZero() {
		return &ValidationError{Field: "start", Message: "start time is required"}
	}
	if end, ok := iv.End.Time(); ok && !end.After(iv.Start) {
		return &ValidationError{Field: "end", Message: "end must be after start"}
	}
	return nil
}

// normalized truncates both bounds to the stored Precision, so validation
// sees the same instants the store will keep.
func (iv WorkInterval) normalized() WorkInterval {
	iv.Start = iv.Start.Truncate(Precision)
	if end, ok := iv.End.Time(); ok {
		iv.End = ClosedAt(end.Truncate(Precision))
	}
	return iv
}

// cloneDetails copies the descriptive fields of iv into a fresh record
// without id or provenance.
func (iv WorkInterval) cloneDetails() WorkInterval {
	return WorkInterval{
		UserID:      iv.UserID,
		ProjectCode: iv.ProjectCode,
		ProjectName: iv.ProjectName,
		Category:    iv.Category,
		Content:     iv.Content,
		IsOvertime:  iv.IsOvertime,
	}
}

// =============================================================================
// PATCH - Partial update applied by UpdateInterval
// =============================================================================

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Start       *time.Time
	End         *End
	ProjectCode *string
	ProjectName *string
	Category    *string
	Content     *string
	IsOvertime  *bool
	Provenance  *Provenance
}

// Apply returns iv with the patch applied.
func (p Patch) Apply(iv WorkInterval) WorkInterval {
	if p.Start != nil {
		iv.Start = *p.Start
	}
	if p.End != nil {
		iv.End = *p.End
	}
	if p.ProjectCode != nil {
		iv.ProjectCode = *p.ProjectCode
	}
	if p.ProjectName != nil {
		iv.ProjectName = *p.ProjectName
	}
	if p.Category != nil {
		iv.Category = *p.Category
	}
	if p.Content != nil {
		iv.Content = *p.Content
	}
	if p.IsOvertime != nil {
		iv.IsOvertime = *p.IsOvertime
	}
	if p.Provenance != nil {
		iv.Provenance = *p.Provenance
	}
	return iv
}

// PatchFrom builds a full-replacement patch of the mutable fields of iv.
func PatchFrom(iv WorkInterval) Patch {
	start, end, prov := iv.Start, iv.End, iv.Provenance
	return Patch{
		Start:       &start,
		End:         &end,
		ProjectCode: &iv.ProjectCode,
		ProjectName: &iv.ProjectName,
		Category:    &iv.Category,
		Content:     &iv.Content,
		IsOvertime:  &iv.IsOvertime,
		Provenance:  &prov,
	}
}

func startPatch(t time.Time) Patch { return Patch{Start: &t} }
func endPatch(e End) Patch         { return Patch{End: &e} }

// =============================================================================
// PUNCH EVENTS
// =============================================================================

type PunchType string

const (
	PunchIn  PunchType = "IN"
	PunchOut PunchType = "OUT"
)

type PunchEvent struct {
	ID        PunchID
	UserID    UserID
	Type      PunchType
	Timestamp time.Time
	Edited    bool
	EditedBy  string
	EditedAt  time.Time
}

// =============================================================================
// DAY RANGE
// =============================================================================

// DayRange is the half-open range [Start, End) of one local calendar day.
type DayRange struct {
	Start time.Time
	End   time.Time
}

func (d DayRange) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Next returns the calendar day after d.
func (d DayRange) Next() DayRange {
	return DayRange{Start: d.End, End: d.End.AddDate(0, 0, 1)}
}

// Previous returns the calendar day before d.
func (d DayRange) Previous() DayRange {
	return DayRange{Start: d.Start.AddDate(0, 0, -1), End: d.Start}
}

func (d DayRange) String() string {
	return d.Start.Format("2006-01-02")
}

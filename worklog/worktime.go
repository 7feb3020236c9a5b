/*
worktime.go - Normal / overtime minute calculator

PURPOSE:
  Given a start/end pair ("HH:mm") and the daily schedule, returns how many
  minutes count as normal paid time and how many as overtime.

ALGORITHM:
  1. Convert every clock value to minutes; an end before start spans midnight.
  2. Normal = overlap of [start, end) with [normalWorkStart, normalWorkEnd),
     minus its overlap with the lunch window. Lunch is never paid.
  3. Overtime = end - max(overtimeStart, start) when end > overtimeStart,
     rounded half-up to the nearest minimumOvertimeUnit.
  4. Both results are clamped to >= 0.

POLICY:
  Time before normalWorkStart is neither normal nor overtime, and neither is
  time between normalWorkEnd and overtimeStart when the two differ. This is
  the configured policy, not a gap: only the two windows are paid.

EXAMPLE:
  cfg := DailyScheduleConfig{NormalWorkStart: "09:00", NormalWorkEnd: "18:00",
      LunchBreakStart: "12:30", LunchBreakEnd: "13:30",
      OvertimeStart: "18:00", MinimumOvertimeUnit: 30}
  wt, _ := ComputeWorkTime("09:00", "19:00", cfg)
  // wt.NormalMinutes == 480, wt.OvertimeMinutes == 60
*/
package worklog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAILY SCHEDULE CONFIG
// =============================================================================

type DailyScheduleConfig struct {
	NormalWorkStart     string `json:"normal_work_start" toml:"normal_work_start"`
	NormalWorkEnd       string `json:"normal_work_end" toml:"normal_work_end"`
	LunchBreakStart     string `json:"lunch_break_start" toml:"lunch_break_start"`
	LunchBreakEnd       string `json:"lunch_break_end" toml:"lunch_break_end"`
	OvertimeStart       string `json:"overtime_start" toml:"overtime_start"`
	MinimumOvertimeUnit int    `json:"minimum_overtime_unit" toml:"minimum_overtime_unit"`
}

// DefaultSchedule is a 09:00-18:00 day with a 12:30-13:30 lunch and
// overtime from 18:00 in 30 minute units.
func DefaultSchedule() DailyScheduleConfig {
	return DailyScheduleConfig{
		NormalWorkStart:     "09:00",
		NormalWorkEnd:       "18:00",
		LunchBreakStart:     "12:30",
		LunchBreakEnd:       "13:30",
		OvertimeStart:       "18:00",
		MinimumOvertimeUnit: 30,
	}
}

// Validate checks clock formats and the overtime unit range (1..60).
func (c DailyScheduleConfig) Validate() error {
	fields := []struct{ name, value string }{
		{"normal_work_start", c.NormalWorkStart},
		{"normal_work_end", c.NormalWorkEnd},
		{"lunch_break_start", c.LunchBreakStart},
		{"lunch_break_end", c.LunchBreakEnd},
		{"overtime_start", c.OvertimeStart},
	}
	for _, f := range fields {
		if _, err := ParseClock(f.value); err != nil {
			return &ValidationError{Field: f.name, Message: err.Error()}
		}
	}
	if c.MinimumOvertimeUnit < 1 || c.MinimumOvertimeUnit > 60 {
		return &ValidationError{
			Field:   "minimum_overtime_unit",
			Message: fmt.Sprintf("must be between 1 and 60, got %d", c.MinimumOvertimeUnit),
		}
	}
	return nil
}

type scheduleMinutes struct {
	normalStart, normalEnd int
	lunchStart, lunchEnd   int
	overtimeStart          int
	unit                   int
}

func (c DailyScheduleConfig) minutes() (scheduleMinutes, error) {
	var (
		m   scheduleMinutes
		err error
	)
	targets := []struct {
		dst *int
		src string
	}{
		{&m.normalStart, c.NormalWorkStart},
		{&m.normalEnd, c.NormalWorkEnd},
		{&m.lunchStart, c.LunchBreakStart},
		{&m.lunchEnd, c.LunchBreakEnd},
		{&m.overtimeStart, c.OvertimeStart},
	}
	for _, t := range targets {
		if *t.dst, err = ParseClock(t.src); err != nil {
			return m, err
		}
	}
	m.unit = c.MinimumOvertimeUnit
	return m, nil
}

// =============================================================================
// CALCULATOR
// =============================================================================

type WorkTime struct {
	NormalMinutes   int `json:"normal_minutes"`
	OvertimeMinutes int `json:"overtime_minutes"`
}

func (w WorkTime) Add(other WorkTime) WorkTime {
	return WorkTime{
		NormalMinutes:   w.NormalMinutes + other.NormalMinutes,
		OvertimeMinutes: w.OvertimeMinutes + other.OvertimeMinutes,
	}
}

// ComputeWorkTime splits [start, end) into normal and overtime minutes.
// Only malformed clock strings produce an error.
func ComputeWorkTime(start, end string, cfg DailyScheduleConfig) (WorkTime, error) {
	s, err := ParseClock(start)
	if err != nil {
		return WorkTime{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return WorkTime{}, err
	}
	m, err := cfg.minutes()
	if err != nil {
		return WorkTime{}, err
	}
	e = NormalizeCrossMidnight(s, e)

	return WorkTime{
		NormalMinutes:   max(normalMinutes(s, e, m), 0),
		OvertimeMinutes: max(overtimeMinutes(s, e, m), 0),
	}, nil
}

func normalMinutes(start, end int, m scheduleMinutes) int {
	workStart := max(start, m.normalStart)
	workEnd := min(end, m.normalEnd)
	if workEnd <= workStart {
		return 0
	}
	return (workEnd - workStart) - overlap(workStart, workEnd, m.lunchStart, m.lunchEnd)
}

func overtimeMinutes(start, end int, m scheduleMinutes) int {
	if end <= m.overtimeStart {
		return 0
	}
	raw := end - max(m.overtimeStart, start)
	return roundToUnit(raw, m.unit)
}

// roundToUnit rounds minutes half-up to the nearest multiple of unit.
func roundToUnit(minutes, unit int) int {
	if unit <= 1 || minutes <= 0 {
		return minutes
	}
	u := decimal.NewFromInt(int64(unit))
	units := decimal.NewFromInt(int64(minutes)).Div(u).Round(0)
	return int(units.Mul(u).IntPart())
}

// overlap returns the length of [a1, a2) ∩ [b1, b2).
func overlap(a1, a2, b1, b2 int) int {
	return max(0, min(a2, b2)-max(a1, b1))
}

package worklog

import (
	"context"

	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// IntervalWorkTime is the calculator result for one closed interval.
type IntervalWorkTime struct {
	Interval WorkInterval
	WorkTime
}

// DaySummary aggregates normal and overtime minutes over a day's closed
// intervals. Open intervals are counted but not computed.
type DaySummary struct {
	Day           DayRange
	Intervals     []IntervalWorkTime
	Total         WorkTime
	NormalHours   decimal.Decimal
	OvertimeHours decimal.Decimal
	OpenIntervals int
}

// SummarizeDay runs ComputeWorkTime over each closed interval of the day
// using the local clock times of its start and end.
func (e *Engine) SummarizeDay(ctx context.Context, userID UserID, day DayRange) (DaySummary, error) {
	cfg, err := e.schedule.LoadDailyScheduleConfig(ctx)
	if err != nil {
		return DaySummary{}, storeErr("load schedule", err)
	}
	ivs, err := e.ListDay(ctx, userID, day)
	if err != nil {
		return DaySummary{}, err
	}

	summary := DaySummary{Day: day}
	for _, iv := range ivs {
		end, closed := iv.End.Time()
		if !closed {
			summary.OpenIntervals++
			continue
		}
		wt, err := ComputeWorkTime(ClockOf(iv.Start.In(e.loc)), ClockOf(end.In(e.loc)), cfg)
		if err != nil {
			return DaySummary{}, err
		}
		summary.Intervals = append(summary.Intervals, IntervalWorkTime{Interval: iv, WorkTime: wt})
		summary.Total = summary.Total.Add(wt)
	}
	summary.NormalHours = MinutesToHours(summary.Total.NormalMinutes)
	summary.OvertimeHours = MinutesToHours(summary.Total.OvertimeMinutes)
	return summary, nil
}

// MinutesToHours converts minutes to hours rounded to two places.
func MinutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(sixty).Round(2)
}

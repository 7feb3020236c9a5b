package worklog

import "time"

// DefaultEarlyMorningHour is the local hour before which yesterday's
// punches are consulted when today has none.
const DefaultEarlyMorningHour = 8

// ClockStatus is the derived in/out state of a user.
type ClockStatus struct {
	ClockedIn    bool
	LastClockIn  *PunchEvent
	LastClockOut *PunchEvent
	FromPrevDay  bool // derived from yesterday's punches (overnight shift)
}

// DeriveClockState applies the clock-state decision table. today and
// yesterday must be sorted newest first; now must be in the local zone.
//
//	IN and OUT today        -> IN after OUT
//	only IN today           -> in
//	only OUT today          -> out
//	nothing, hour < cutoff  -> same rules over yesterday (unmatched IN -> in)
//	nothing, hour >= cutoff -> out
func DeriveClockState(today, yesterday []PunchEvent, now time.Time, earlyMorningHour int) ClockStatus {
	in, out := latestPunches(today)
	if in != nil || out != nil {
		return ClockStatus{ClockedIn: clockedIn(in, out), LastClockIn: in, LastClockOut: out}
	}
	if now.Hour() >= earlyMorningHour {
		return ClockStatus{}
	}

	in, out = latestPunches(yesterday)
	return ClockStatus{
		ClockedIn:    clockedIn(in, out),
		LastClockIn:  in,
		LastClockOut: out,
		FromPrevDay:  in != nil || out != nil,
	}
}

// latestPunches returns the first IN and first OUT of a newest-first list.
func latestPunches(events []PunchEvent) (in, out *PunchEvent) {
	for i := range events {
		ev := events[i]
		switch ev.Type {
		case PunchIn:
			if in == nil {
				in = &ev
			}
		case PunchOut:
			if out == nil {
				out = &ev
			}
		}
		if in != nil && out != nil {
			break
		}
	}
	return in, out
}

func clockedIn(in, out *PunchEvent) bool {
	switch {
	case in != nil && out != nil:
		return in.Timestamp.After(out.Timestamp)
	case in != nil:
		return true
	default:
		return false
	}
}

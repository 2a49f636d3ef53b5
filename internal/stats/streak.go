package stats

import "time"

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time, loc *time.Location) day {
	y, m, d := t.In(loc).Date()
	return day{y, m, d}
}

func (d day) prev(loc *time.Location) day {
	y, m, dd := time.Date(d.year, d.month, d.day-1, 12, 0, 0, 0, loc).Date()
	return day{y, m, dd}
}

// Streak counts consecutive practice days ending today, or ending yesterday
// when nothing was recorded today. Timestamps are bucketed to civil dates in
// loc; several sessions on one day count once.
func Streak(times []time.Time, now time.Time, loc *time.Location) int {
	if len(times) == 0 {
		return 0
	}
	if loc == nil {
		loc = time.Local
	}

	days := make(map[day]struct{}, len(times))
	for _, t := range times {
		days[dayOf(t, loc)] = struct{}{}
	}

	cursor := dayOf(now, loc)
	if _, ok := days[cursor]; !ok {
		cursor = cursor.prev(loc)
	}

	streak := 0
	for {
		if _, ok := days[cursor]; !ok {
			return streak
		}
		streak++
		cursor = cursor.prev(loc)
	}
}

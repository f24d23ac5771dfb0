package progress

import (
	"sort"

	"example.com/studytrack/internal/domain"
)

// Streak counts consecutive study days walking back from today.
//
// Distinct dates are visited most recent first. A date extends the streak only
// when it lies exactly streak days before today; the first date that does not
// ends the walk. With no entry today the walk stops at once, so a run that
// ends yesterday reads as 0 until something is logged today.
func Streak(dates []domain.Date, today domain.Date) int {
	distinct := make(map[domain.Date]struct{}, len(dates))
	ordered := make([]domain.Date, 0, len(dates))
	for _, d := range dates {
		if _, ok := distinct[d]; ok {
			continue
		}
		distinct[d] = struct{}{}
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] > ordered[j] })

	streak := 0
	for _, d := range ordered {
		if today.DaysSince(d) != streak {
			break
		}
		streak++
	}
	return streak
}

// ActivityStreak is Streak over the dates of activities.
func ActivityStreak(activities []domain.Activity, today domain.Date) int {
	dates := make([]domain.Date, 0, len(activities))
	for _, a := range activities {
		dates = append(dates, a.Date)
	}
	return Streak(dates, today)
}

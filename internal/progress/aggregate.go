// Package progress computes study totals, streaks and badges from a snapshot
// of activity records. Every function here is pure.
package progress

import (
	"sort"

	"example.com/studytrack/internal/domain"
)

// TodayMinutes sums the minutes logged against sessionID on exactly today.
func TodayMinutes(activities []domain.Activity, sessionID string, today domain.Date) int {
	total := 0
	for _, a := range activities {
		if a.SessionID == sessionID && a.Date == today {
			total += a.DurationMinutes
		}
	}
	return total
}

// TotalMinutes sums every activity logged against sessionID.
func TotalMinutes(activities []domain.Activity, sessionID string) int {
	total := 0
	for _, a := range activities {
		if a.SessionID == sessionID {
			total += a.DurationMinutes
		}
	}
	return total
}

// SessionsCount counts the activities logged against sessionID. Same-day
// duplicates each count once.
func SessionsCount(activities []domain.Activity, sessionID string) int {
	count := 0
	for _, a := range activities {
		if a.SessionID == sessionID {
			count++
		}
	}
	return count
}

// WeeklyMinutes sums all minutes logged in the seven days ending on today.
func WeeklyMinutes(activities []domain.Activity, today domain.Date) int {
	total := 0
	for _, a := range activities {
		diff := today.DaysSince(a.Date)
		if diff >= 0 && diff < 7 {
			total += a.DurationMinutes
		}
	}
	return total
}

// DayEntry is one activity as shown in a calendar day.
type DayEntry struct {
	SessionID   string `json:"sessionId" yaml:"sessionId"`
	SessionName string `json:"sessionName" yaml:"sessionName"`
	Minutes     int    `json:"minutes" yaml:"minutes"`
	Notes       string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Color       string `json:"color" yaml:"color"`
}

// DayGroup buckets the activities of one calendar day.
type DayGroup struct {
	Date         domain.Date `json:"date" yaml:"date"`
	Entries      []DayEntry  `json:"entries" yaml:"entries"`
	TotalMinutes int         `json:"totalMinutes" yaml:"totalMinutes"`
}

// GroupByDate buckets activities by date, most recent day first. Entries keep
// the order in which they appear in activities. colors may be nil.
func GroupByDate(activities []domain.Activity, colors map[string]string) []DayGroup {
	index := make(map[domain.Date]int)
	groups := make([]DayGroup, 0)
	for _, a := range activities {
		i, ok := index[a.Date]
		if !ok {
			i = len(groups)
			index[a.Date] = i
			groups = append(groups, DayGroup{Date: a.Date})
		}
		groups[i].Entries = append(groups[i].Entries, DayEntry{
			SessionID:   a.SessionID,
			SessionName: a.SessionName,
			Minutes:     a.DurationMinutes,
			Notes:       a.Notes,
			Color:       colorFor(colors, a.SessionID),
		})
		groups[i].TotalMinutes += a.DurationMinutes
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date > groups[j].Date
	})
	return groups
}

// StudyDays returns the distinct days with at least one activity, most recent first.
func StudyDays(activities []domain.Activity) []domain.Date {
	seen := make(map[domain.Date]struct{}, len(activities))
	days := make([]domain.Date, 0, len(activities))
	for _, a := range activities {
		if _, ok := seen[a.Date]; ok {
			continue
		}
		seen[a.Date] = struct{}{}
		days = append(days, a.Date)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
	return days
}

// FilterSession keeps only the activities of sessionID.
func FilterSession(activities []domain.Activity, sessionID string) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, a := range activities {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out
}

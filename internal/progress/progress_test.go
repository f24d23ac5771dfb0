package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/studytrack/internal/domain"
)

var today = domain.MustParseDate("2024-05-03")

func activity(sessionID string, date domain.Date, minutes int) domain.Activity {
	return domain.Activity{
		ID:              sessionID + "-" + string(date),
		UserID:          "u1",
		SessionID:       sessionID,
		SessionName:     "name-" + sessionID,
		Date:            date,
		DurationMinutes: minutes,
	}
}

func session(id string, created time.Time, target int) domain.Session {
	return domain.Session{ID: id, UserID: "u1", Name: "name-" + id, DailyTargetMinutes: target, CreatedAt: created}
}

func TestStreak(t *testing.T) {
	cases := []struct {
		name  string
		dates []domain.Date
		want  int
	}{
		{"empty", nil, 0},
		{"today only", []domain.Date{today}, 1},
		{"three consecutive", []domain.Date{today, today.AddDays(-1), today.AddDays(-2)}, 3},
		{"duplicates count once", []domain.Date{today, today, today.AddDays(-1)}, 2},
		{"unordered input", []domain.Date{today.AddDays(-2), today, today.AddDays(-1)}, 3},
		{"gap ends the run", []domain.Date{today, today.AddDays(-2), today.AddDays(-3)}, 1},
		{"run ending yesterday", []domain.Date{today.AddDays(-1), today.AddDays(-2)}, 0},
		{"only yesterday", []domain.Date{today.AddDays(-1)}, 0},
		{"two days ago", []domain.Date{today.AddDays(-2)}, 0},
		{"future date halts the walk", []domain.Date{today.AddDays(1), today}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Streak(tc.dates, today))
		})
	}
}

func TestStreakCrossesMonthBoundary(t *testing.T) {
	day := domain.MustParseDate("2024-03-01")
	dates := []domain.Date{day, "2024-02-29", "2024-02-28"}
	require.Equal(t, 3, Streak(dates, day))
}

func TestDailyAndWeeklyTotals(t *testing.T) {
	activities := []domain.Activity{
		activity("a", today, 45),
		activity("a", today, 20),
		activity("b", today, 10),
		activity("a", today.AddDays(-6), 30),
		activity("a", today.AddDays(-7), 90),
		activity("a", today.AddDays(1), 15),
	}

	require.Equal(t, 65, TodayMinutes(activities, "a", today))
	require.Equal(t, 10, TodayMinutes(activities, "b", today))
	require.Equal(t, 0, TodayMinutes(activities, "missing", today))
	require.Equal(t, 200, TotalMinutes(activities, "a"))
	require.Equal(t, 5, SessionsCount(activities, "a"))
	require.Equal(t, 105, WeeklyMinutes(activities, today))
}

func TestGroupByDate(t *testing.T) {
	activities := []domain.Activity{
		activity("a", today.AddDays(-1), 20),
		activity("a", today, 45),
		activity("b", today, 10),
	}
	colors := map[string]string{"a": "#111111"}

	groups := GroupByDate(activities, colors)
	require.Len(t, groups, 2)
	require.Equal(t, today, groups[0].Date)
	require.Equal(t, 55, groups[0].TotalMinutes)
	require.Len(t, groups[0].Entries, 2)
	require.Equal(t, "#111111", groups[0].Entries[0].Color)
	require.Equal(t, FallbackColor, groups[0].Entries[1].Color)
	require.Equal(t, today.AddDays(-1), groups[1].Date)

	require.Equal(t, groups, GroupByDate(activities, colors))
	require.Empty(t, GroupByDate(nil, nil))
	require.NotNil(t, GroupByDate(nil, nil))
}

func TestStudyDaysAreDistinctAndDescending(t *testing.T) {
	activities := []domain.Activity{
		activity("a", today.AddDays(-3), 5),
		activity("a", today, 5),
		activity("b", today, 5),
	}
	require.Equal(t, []domain.Date{today, today.AddDays(-3)}, StudyDays(activities))
}

func TestEvaluateBadges(t *testing.T) {
	status := EvaluateBadges(29, DefaultMilestones)
	require.Len(t, status.Earned, 1)
	require.Equal(t, 7, status.Earned[0].ThresholdDays)
	require.NotNil(t, status.Next)
	require.Equal(t, 30, status.Next.ThresholdDays)
	require.Equal(t, 1, status.DaysToNext)

	zero := EvaluateBadges(0, DefaultMilestones)
	require.Empty(t, zero.Earned)
	require.Equal(t, 7, zero.DaysToNext)

	exact := EvaluateBadges(7, DefaultMilestones)
	require.Len(t, exact.Earned, 1)
	require.Equal(t, 30, exact.Next.ThresholdDays)

	all := EvaluateBadges(5000, DefaultMilestones)
	require.Len(t, all.Earned, len(DefaultMilestones))
	require.Nil(t, all.Next)
	require.Zero(t, all.DaysToNext)
}

func TestPaletteFollowsCreationOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	palette := Palette{"red", "green"}
	sessions := []domain.Session{
		session("c", base.Add(2*time.Hour), 10),
		session("a", base, 10),
		session("b", base.Add(time.Hour), 10),
	}

	colors := palette.Assign(sessions)
	require.Equal(t, map[string]string{"a": "red", "b": "green", "c": "red"}, colors)

	reversed := []domain.Session{sessions[2], sessions[1], sessions[0]}
	require.Equal(t, colors, palette.Assign(reversed))

	require.Equal(t, FallbackColor, Palette{}.Assign(sessions)["a"])
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []domain.Session{
		session("b", base.Add(time.Hour), 30),
		session("a", base, 60),
	}
	activities := []domain.Activity{
		activity("a", today, 45),
		activity("a", today.AddDays(-1), 20),
		activity("b", today.AddDays(-1), 40),
	}

	summary := Summarize(sessions, activities, today, Options{})
	require.Equal(t, today, summary.Today)
	require.Equal(t, 2, summary.Streak)
	require.Equal(t, 45, summary.TodayMinutes)
	require.Equal(t, 90, summary.TodayTarget)
	require.Equal(t, 105, summary.WeeklyMinutes)
	require.Equal(t, 630, summary.WeeklyTarget)
	require.Equal(t, 5, summary.Badges.DaysToNext)

	require.Len(t, summary.Sessions, 2)
	first, second := summary.Sessions[0], summary.Sessions[1]
	require.Equal(t, "a", first.Session.ID)
	require.Equal(t, DefaultPalette[0], first.Color)
	require.Equal(t, 75, first.GoalPercent)
	require.Equal(t, 2, first.Streak)
	require.Equal(t, 2, first.SessionsCount)
	require.Equal(t, 65, first.TotalMinutes)

	require.Equal(t, "b", second.Session.ID)
	require.Equal(t, DefaultPalette[1], second.Color)
	require.Equal(t, 0, second.GoalPercent)
	require.Equal(t, 0, second.Streak)
	require.Len(t, summary.Calendar, 2)
}

func TestGoalPercentIsCapped(t *testing.T) {
	require.Equal(t, 100, goalPercent(150, 60))
	require.Equal(t, 50, goalPercent(30, 60))
	require.Equal(t, 0, goalPercent(30, 0))
}

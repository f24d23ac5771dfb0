package progress

import "example.com/studytrack/internal/domain"

// SessionProgress is the per-session view on the home and progress screens.
type SessionProgress struct {
	Session       domain.Session `json:"session" yaml:"session"`
	Color         string         `json:"color" yaml:"color"`
	TodayMinutes  int            `json:"todayMinutes" yaml:"todayMinutes"`
	TotalMinutes  int            `json:"totalMinutes" yaml:"totalMinutes"`
	SessionsCount int            `json:"sessionsCount" yaml:"sessionsCount"`
	Streak        int            `json:"streak" yaml:"streak"`
	GoalPercent   int            `json:"goalPercent" yaml:"goalPercent"`
}

// Summary aggregates everything the progress screen shows for one user.
type Summary struct {
	Today         domain.Date       `json:"today" yaml:"today"`
	Streak        int               `json:"streak" yaml:"streak"`
	Badges        BadgeStatus       `json:"badges" yaml:"badges"`
	TodayMinutes  int               `json:"todayMinutes" yaml:"todayMinutes"`
	TodayTarget   int               `json:"todayTarget" yaml:"todayTarget"`
	WeeklyMinutes int               `json:"weeklyMinutes" yaml:"weeklyMinutes"`
	WeeklyTarget  int               `json:"weeklyTarget" yaml:"weeklyTarget"`
	Sessions      []SessionProgress `json:"sessions" yaml:"sessions"`
	StudyDays     []domain.Date     `json:"studyDays" yaml:"studyDays"`
	Calendar      []DayGroup        `json:"calendar" yaml:"calendar"`
}

// Options tune Summarize. Zero values select the defaults.
type Options struct {
	Palette    Palette
	Milestones []Milestone
}

// Summarize builds the progress summary for one user's snapshot.
func Summarize(sessions []domain.Session, activities []domain.Activity, today domain.Date, opts Options) Summary {
	palette := opts.Palette
	if palette == nil {
		palette = DefaultPalette
	}
	milestones := opts.Milestones
	if milestones == nil {
		milestones = DefaultMilestones
	}

	colors := palette.Assign(sessions)
	streak := ActivityStreak(activities, today)

	ordered := byCreation(sessions)

	summary := Summary{
		Today:         today,
		Streak:        streak,
		Badges:        EvaluateBadges(streak, milestones),
		WeeklyMinutes: WeeklyMinutes(activities, today),
		Sessions:      make([]SessionProgress, 0, len(ordered)),
		StudyDays:     StudyDays(activities),
		Calendar:      GroupByDate(activities, colors),
	}

	for _, s := range ordered {
		todayMinutes := TodayMinutes(activities, s.ID, today)
		row := SessionProgress{
			Session:       s,
			Color:         colors[s.ID],
			TodayMinutes:  todayMinutes,
			TotalMinutes:  TotalMinutes(activities, s.ID),
			SessionsCount: SessionsCount(activities, s.ID),
			Streak:        ActivityStreak(FilterSession(activities, s.ID), today),
			GoalPercent:   goalPercent(todayMinutes, s.DailyTargetMinutes),
		}
		summary.Sessions = append(summary.Sessions, row)
		summary.TodayMinutes += todayMinutes
		summary.TodayTarget += s.DailyTargetMinutes
	}
	summary.WeeklyTarget = summary.TodayTarget * 7
	return summary
}

// goalPercent is capped at 100 like the progress ring.
func goalPercent(minutes, target int) int {
	if target <= 0 {
		return 0
	}
	pct := minutes * 100 / target
	if pct > 100 {
		return 100
	}
	return pct
}

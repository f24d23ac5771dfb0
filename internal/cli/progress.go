package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/progress"
)

func (rt *runtime) progressCommand() *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show daily goals, weekly totals, streak and badges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			day := rt.today()
			if today != "" {
				if day, err = domain.ParseDate(today); err != nil {
					return &domain.ValidationError{Field: "today", Reason: "must be a YYYY-MM-DD date"}
				}
			}
			snapshot, err := rt.service.Snapshot(cmd.Context(), p)
			if err != nil {
				return err
			}
			summary := progress.Summarize(snapshot.Sessions, snapshot.Activities, day, progress.Options{})
			return rt.printer().print(summary, func(w io.Writer) error {
				return renderSummary(w, summary)
			})
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "Evaluate as of this date YYYY-MM-DD")
	return cmd
}

func renderSummary(w io.Writer, s progress.Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Progress as of %s\n", s.Today)
	fmt.Fprintf(&b, "Today:  %d / %d min\n", s.TodayMinutes, s.TodayTarget)
	fmt.Fprintf(&b, "Week:   %d / %d min\n", s.WeeklyMinutes, s.WeeklyTarget)
	fmt.Fprintf(&b, "Streak: %d days\n", s.Streak)
	if len(s.Badges.Earned) > 0 {
		titles := make([]string, 0, len(s.Badges.Earned))
		for _, m := range s.Badges.Earned {
			titles = append(titles, m.Title)
		}
		fmt.Fprintf(&b, "Badges: %s\n", strings.Join(titles, ", "))
	}
	if s.Badges.Next != nil {
		fmt.Fprintf(&b, "Next:   %s in %d days\n", s.Badges.Next.Title, s.Badges.DaysToNext)
	}
	if len(s.Sessions) > 0 {
		b.WriteString("\n")
	}
	for _, row := range s.Sessions {
		fmt.Fprintf(&b, "%s %-24s %3d%%  today %d/%d min  total %d min  %d logs  streak %d\n",
			row.Color, row.Session.Name, row.GoalPercent,
			row.TodayMinutes, row.Session.DailyTargetMinutes,
			row.TotalMinutes, row.SessionsCount, row.Streak)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/progress"
)

func (rt *runtime) logCommand() *cobra.Command {
	var (
		minutes int
		date    string
		notes   string
		media   []string
	)
	cmd := &cobra.Command{
		Use:   "log SESSION_ID",
		Short: "Record time studied for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			day := rt.today()
			if date != "" {
				if day, err = domain.ParseDate(date); err != nil {
					return &domain.ValidationError{Field: "date", Reason: "must be a YYYY-MM-DD date"}
				}
			}
			activity, err := rt.service.LogActivity(cmd.Context(), p, domain.LogActivityInput{
				SessionID:       args[0],
				Date:            day,
				DurationMinutes: minutes,
				Notes:           notes,
				Media:           media,
			})
			if err != nil {
				return err
			}
			return rt.printer().print(activity, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged %d min of %s on %s\n", activity.DurationMinutes, activity.SessionName, activity.Date)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Minutes studied")
	cmd.Flags().StringVar(&date, "date", "", "Calendar date YYYY-MM-DD (today when empty)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().StringSliceVar(&media, "media", nil, "Attached media URIs")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func (rt *runtime) activitiesCommand() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "Show logged activities grouped by day, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			sessions, err := rt.service.ListSessions(cmd.Context(), p)
			if err != nil {
				return err
			}
			activities, err := rt.service.ListActivities(cmd.Context(), p, sessionID)
			if err != nil {
				return err
			}
			days := progress.GroupByDate(activities, progress.DefaultPalette.Assign(sessions))
			return rt.printer().print(days, func(w io.Writer) error {
				return renderDays(w, days)
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only show activities of this session")
	return cmd
}

func renderDays(w io.Writer, days []progress.DayGroup) error {
	if len(days) == 0 {
		_, err := fmt.Fprintln(w, "No activities yet.")
		return err
	}
	for _, day := range days {
		if _, err := fmt.Fprintf(w, "%s  %d min\n", day.Date, day.TotalMinutes); err != nil {
			return err
		}
		for _, e := range day.Entries {
			line := fmt.Sprintf("  %s %-24s %4d min", e.Color, e.SessionName, e.Minutes)
			if e.Notes != "" {
				line += "  " + e.Notes
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

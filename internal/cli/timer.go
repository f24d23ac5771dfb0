package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/timer"
)

// timerResult is what the timer command reports once the run ends.
type timerResult struct {
	SessionID string           `json:"sessionId" yaml:"sessionId"`
	State     string           `json:"state" yaml:"state"`
	Minutes   int              `json:"minutes" yaml:"minutes"`
	Target    int              `json:"target" yaml:"target"`
	Activity  *domain.Activity `json:"activity,omitempty" yaml:"activity,omitempty"`
}

func (rt *runtime) timerCommand() *cobra.Command {
	var (
		target  int
		logTime bool
		notes   string
	)
	cmd := &cobra.Command{
		Use:   "timer SESSION_ID",
		Short: "Run a focus timer for a session until the target is reached or Ctrl-C",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			sessions, err := rt.service.ListSessions(cmd.Context(), p)
			if err != nil {
				return err
			}
			var session *domain.Session
			for i := range sessions {
				if sessions[i].ID == args[0] {
					session = &sessions[i]
					break
				}
			}
			if session == nil {
				return domain.NotFoundError("session", args[0])
			}
			if !cmd.Flags().Changed("minutes") {
				target = session.DailyTargetMinutes
			}

			t, err := timer.New(target, rt.app.TimerOptions...)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := t.Start(); err != nil {
				return err
			}
			if rt.output == formatText {
				fmt.Fprintf(rt.app.Out, "Focusing on %s for %d min. Press Ctrl-C to stop.\n", session.Name, target)
			}
			select {
			case <-t.Done():
			case <-ctx.Done():
			}
			minutes := t.Stop()

			result := timerResult{
				SessionID: session.ID,
				State:     t.State().String(),
				Minutes:   minutes,
				Target:    target,
			}
			if logTime && minutes > 0 {
				activity, err := rt.service.LogActivity(cmd.Context(), p, domain.LogActivityInput{
					SessionID:       session.ID,
					Date:            rt.today(),
					DurationMinutes: minutes,
					Notes:           notes,
				})
				if err != nil {
					return err
				}
				result.Activity = &activity
			}
			return rt.printer().print(result, func(w io.Writer) error {
				if _, err := fmt.Fprintf(w, "Timer %s after %d of %d min\n", result.State, minutes, target); err != nil {
					return err
				}
				if result.Activity != nil {
					_, err := fmt.Fprintf(w, "Logged %d min of %s on %s\n", minutes, session.Name, result.Activity.Date)
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&target, "minutes", "m", 0, "Target minutes (the session's daily target when unset)")
	cmd.Flags().BoolVar(&logTime, "log", false, "Log the completed minutes as an activity")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes for the logged activity")
	return cmd
}

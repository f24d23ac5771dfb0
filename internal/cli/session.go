package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/progress"
)

// sessionRow is a session with its display colour.
type sessionRow struct {
	domain.Session `yaml:",inline"`
	Color          string `json:"color" yaml:"color"`
}

func (rt *runtime) sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage study sessions of the current profile",
	}
	cmd.AddCommand(
		rt.sessionCreateCommand(),
		rt.sessionListCommand(),
		rt.sessionUpdateCommand(),
		rt.sessionRemoveCommand(),
		rt.sessionExportCommand(),
		rt.sessionImportCommand(),
	)
	return cmd
}

func (rt *runtime) sessionCreateCommand() *cobra.Command {
	var input domain.CreateSessionInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a study session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			session, err := rt.service.CreateSession(cmd.Context(), p, input)
			if err != nil {
				return err
			}
			return rt.printer().print(session, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Created session %s (%s), target %d min/day\n", session.Name, session.ID, session.DailyTargetMinutes)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "Session name")
	cmd.Flags().StringVar(&input.Description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&input.Theme, "theme", "", "Theme tag")
	cmd.Flags().IntVar(&input.DailyTargetMinutes, "target", 30, "Daily target in minutes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (rt *runtime) sessionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions in creation order",
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
			colors := progress.DefaultPalette.Assign(sessions)
			rows := make([]sessionRow, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, sessionRow{Session: s, Color: colors[s.ID]})
			}
			return rt.printer().print(rows, func(w io.Writer) error {
				if len(rows) == 0 {
					_, err := fmt.Fprintln(w, "No sessions yet.")
					return err
				}
				for _, r := range rows {
					if _, err := fmt.Fprintf(w, "%-36s  %-24s  %4d min/day  %s  %s\n", r.ID, r.Name, r.DailyTargetMinutes, r.Color, r.Theme); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (rt *runtime) sessionUpdateCommand() *cobra.Command {
	var (
		name, description, theme string
		target                   int
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a session; only the given flags are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			var patch domain.SessionPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("theme") {
				patch.Theme = &theme
			}
			if flags.Changed("target") {
				patch.DailyTargetMinutes = &target
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to update; pass at least one of --name, --description, --theme, --target")
			}
			session, err := rt.service.UpdateSession(cmd.Context(), p, args[0], patch)
			if err != nil {
				return err
			}
			return rt.printer().print(session, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Updated session %s (%s)\n", session.Name, session.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&theme, "theme", "", "New theme tag")
	cmd.Flags().IntVar(&target, "target", 0, "New daily target in minutes")
	return cmd
}

func (rt *runtime) sessionRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Delete a session and every activity logged against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			if err := rt.service.DeleteSession(cmd.Context(), p, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rt.app.Out, "Removed session %s\n", args[0])
			return nil
		},
	}
}

func (rt *runtime) sessionExportCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the session collection as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			sessions, err := rt.service.ExportSessions(cmd.Context(), p)
			if err != nil {
				return err
			}
			if file == "" {
				return printer{w: rt.app.Out, format: formatJSON}.print(sessions, nil)
			}
			raw, err := json.MarshalIndent(sessions, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, raw, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(rt.app.Out, "Exported %d sessions to %s\n", len(sessions), file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Destination file (stdout when empty)")
	return cmd
}

func (rt *runtime) sessionImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the session collection with the contents of a JSON or YAML file",
		Long: `Import replaces every session of the current profile. Sessions that are
not part of the file are deleted together with their activities.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rt.profile()
			if err != nil {
				return err
			}
			sessions, err := readSessions(args[0])
			if err != nil {
				return err
			}
			imported, err := rt.service.ImportSessions(cmd.Context(), p, sessions)
			if err != nil {
				return err
			}
			return rt.printer().print(imported, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Imported %d sessions\n", len(imported))
				return err
			})
		},
	}
}

func readSessions(path string) ([]domain.Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	var sessions []domain.Session
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &sessions)
	default:
		err = json.Unmarshal(raw, &sessions)
	}
	if err != nil {
		return nil, &domain.ValidationError{Field: "sessions", Reason: "must be a list of sessions: " + err.Error()}
	}
	return sessions, nil
}

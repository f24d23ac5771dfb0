package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func (rt *runtime) backupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore the whole local database",
	}

	var file string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every profile, session and activity as one JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := rt.store.Export(cmd.Context())
			if err != nil {
				return err
			}
			if file == "" {
				_, err := fmt.Fprintln(rt.app.Out, string(raw))
				return err
			}
			if err := os.WriteFile(file, raw, 0o600); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
			fmt.Fprintf(rt.app.Out, "Wrote backup to %s\n", file)
			return nil
		},
	}
	export.Flags().StringVarP(&file, "file", "f", "", "Destination file (stdout when empty)")

	restore := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the local database with a backup document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			if err := rt.store.Import(cmd.Context(), raw); err != nil {
				return err
			}
			fmt.Fprintf(rt.app.Out, "Restored backup from %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(export, restore)
	return cmd
}

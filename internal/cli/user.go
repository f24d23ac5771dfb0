package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"example.com/studytrack/internal/domain"
)

func (rt *runtime) userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local profiles",
	}

	var id, photo string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a profile; the first one becomes current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := rt.service.CreateUser(cmd.Context(), domain.CreateUserInput{
				ID:          id,
				DisplayName: args[0],
				Photo:       photo,
			})
			if err != nil {
				return err
			}
			return rt.printer().print(user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Created user %s (%s)\n", user.DisplayName, user.ID)
				return err
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "Explicit user id (generated when empty)")
	add.Flags().StringVar(&photo, "photo", "", "Avatar URL")

	list := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := rt.service.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			current := rt.store.CurrentUserID()
			return rt.printer().print(users, func(w io.Writer) error {
				if len(users) == 0 {
					_, err := fmt.Fprintln(w, "No users yet.")
					return err
				}
				for _, u := range users {
					marker := " "
					if u.ID == current {
						marker = "*"
					}
					if _, err := fmt.Fprintf(w, "%s %-36s  %s\n", marker, u.ID, u.DisplayName); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch ID",
		Short: "Select the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.store.SetCurrentUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rt.app.Out, "Current user is now %s\n", args[0])
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Delete a profile with all of its sessions and activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.service.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rt.app.Out, "Removed user %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, switchCmd, remove)
	return cmd
}

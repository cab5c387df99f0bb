package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dataflag/internal/bootstrap"
	"dataflag/internal/errs"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "View and create opinion authors",
}

var userCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		user, err := svc.Flagging.CreateUser(cmd.Context(), cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "create user")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created user: %s\n", user.Name); err != nil {
			return errs.Wrap(err, "write user output")
		}
		return nil
	}),
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known users",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		users, err := svc.Flagging.ListUsers(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "list users")
		}

		for _, user := range users {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), user.Name); err != nil {
				return errs.Wrap(err, "write user output")
			}
		}
		return nil
	}),
}

func init() {
	userCmd.AddCommand(userCreateCmd, userListCmd)
	rootCmd.AddCommand(userCmd)
}

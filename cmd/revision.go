package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dataflag/internal/bootstrap"
	"dataflag/internal/errs"
)

var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "View and create data revisions",
}

var revisionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new revision",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		revision, err := svc.Flagging.CreateRevision(cmd.Context(), cmd.Flags().Arg(0), stringFlagPtr(cmd, "description"))
		if err != nil {
			return errs.Wrap(err, "create revision")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created revision: %s\n", revision.Name); err != nil {
			return errs.Wrap(err, "write revision output")
		}
		return nil
	}),
}

var revisionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known revisions",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		revisions, err := svc.Flagging.ListRevisions(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "list revisions")
		}

		for _, revision := range revisions {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), revision.Name); err != nil {
				return errs.Wrap(err, "write revision output")
			}
		}
		return nil
	}),
}

var revisionShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show details of a revision",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		revision, err := svc.Flagging.GetRevision(cmd.Context(), cmd.Flags().Arg(0))
		if err != nil {
			return errs.Wrap(err, "show revision")
		}

		description := ""
		if revision.Description != nil {
			description = *revision.Description
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "name: %s\ndescription: %s\n", revision.Name, description); err != nil {
			return errs.Wrap(err, "write revision output")
		}
		return nil
	}),
}

func init() {
	revisionCreateCmd.Flags().String("description", "", "Description of the revision")

	revisionCmd.AddCommand(revisionCreateCmd, revisionListCmd, revisionShowCmd)
	rootCmd.AddCommand(revisionCmd)
}

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"dataflag/internal/bootstrap"
	"dataflag/internal/bootstrap/logging"
	"dataflag/internal/errs"
	"dataflag/internal/usecase/voting"
)

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Translate opinions into data flags by voting",
	Long:  "Run a voting pass: scan opinions of a revision entered since the last vote of the chosen mode and turn unanimous ones into flags. Every considered opinion gets a vote record.",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		mode, _ := cmd.Flags().GetString("mode")
		revision, _ := cmd.Flags().GetString("revision")

		flags, err := svc.Voting.Run(ctx, voting.RunInput{
			Mode:         mode,
			RevisionName: revision,
		})
		if err != nil {
			logging.Error(ctx, "voting run failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "run vote")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created %d flag(s)\n", len(flags)); err != nil {
			return errs.Wrap(err, "write vote output")
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			unix, _ := cmd.Flags().GetBool("unix")
			for _, flag := range flags {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatFlag(flag, unix)); err != nil {
					return errs.Wrap(err, "write vote output")
				}
			}
		}
		return nil
	}),
}

func init() {
	voteCmd.Flags().String("mode", "hypnotoad", fmt.Sprintf("Voting mode, one of %v", voting.ModeNames()))
	voteCmd.Flags().String("revision", "", "Name of the revision to vote on")
	voteCmd.Flags().Bool("verbose", false, "Echo the created flags")
	voteCmd.Flags().Bool("unix", false, "Show times as Unix seconds")
	_ = voteCmd.MarkFlagRequired("revision")

	rootCmd.AddCommand(voteCmd)
}

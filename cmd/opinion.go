package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dataflag/internal/bootstrap"
	"dataflag/internal/errs"
	"dataflag/internal/usecase/flagging"
)

var opinionCmd = &cobra.Command{
	Use:   "opinion",
	Short: "View and modify per-LSD user opinions",
}

var opinionCreateCmd = &cobra.Command{
	Use:   "create USER DECISION TYPE LSD REVISION",
	Short: "Record a user's opinion about one LSD",
	Long:  "Record USER's DECISION (good, bad or unsure) of TYPE about LSD under REVISION. An existing opinion for the same (type, user, lsd, revision) is updated in place.",
	Args:  cobra.ExactArgs(5),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		lsd, err := strconv.ParseInt(cmd.Flags().Arg(3), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lsd %q", cmd.Flags().Arg(3))
		}

		extra, err := metadataFlag(cmd, "metadata")
		if err != nil {
			return err
		}
		instrument, _ := cmd.Flags().GetString("instrument")

		opinion, created, err := svc.Flagging.CreateOpinion(cmd.Context(), flagging.CreateOpinionInput{
			UserName:     cmd.Flags().Arg(0),
			Decision:     cmd.Flags().Arg(1),
			TypeName:     cmd.Flags().Arg(2),
			LSD:          lsd,
			RevisionName: cmd.Flags().Arg(4),
			Notes:        stringFlagPtr(cmd, "notes"),
			Instrument:   instrument,
			Freq:         intSliceFlag(cmd, "freq"),
			Inputs:       intSliceFlag(cmd, "inputs"),
			Extra:        extra,
		})
		if err != nil {
			return errs.Wrap(err, "create opinion")
		}

		verb := "created"
		if !created {
			verb = "updated"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s opinion: %d\n", verb, opinion.ID); err != nil {
			return errs.Wrap(err, "write opinion output")
		}
		return nil
	}),
}

var opinionEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit an existing opinion",
	Long:  "Edit the opinion with ID. Decision, type, lsd and notes can change; the authoring user cannot.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		id, err := strconv.ParseUint(cmd.Flags().Arg(0), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid opinion id %q", cmd.Flags().Arg(0))
		}

		opinion, err := svc.Flagging.EditOpinion(cmd.Context(), flagging.EditOpinionInput{
			ID:       id,
			Decision: stringFlagPtr(cmd, "decision"),
			TypeName: stringFlagPtr(cmd, "type"),
			LSD:      int64FlagPtr(cmd, "lsd"),
			Notes:    stringFlagPtr(cmd, "notes"),
		})
		if err != nil {
			return errs.Wrap(err, "edit opinion")
		}

		unix, _ := cmd.Flags().GetBool("unix")
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatOpinion(opinion, unix)); err != nil {
			return errs.Wrap(err, "write opinion output")
		}
		return nil
	}),
}

var opinionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known opinions",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		revision, _ := cmd.Flags().GetString("revision")
		user, _ := cmd.Flags().GetString("user")

		opinions, err := svc.Flagging.ListOpinions(cmd.Context(), flagging.ListOpinionsInput{
			RevisionName: revision,
			UserName:     user,
			LSD:          int64FlagPtr(cmd, "lsd"),
		})
		if err != nil {
			return errs.Wrap(err, "list opinions")
		}

		for _, opinion := range opinions {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%d\t%s\t%s\n",
				opinion.ID, opinion.UserName, opinion.Decision, opinion.LSD,
				opinion.RevisionName, opinion.TypeName); err != nil {
				return errs.Wrap(err, "write opinion output")
			}
		}
		return nil
	}),
}

var opinionShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show information about an opinion",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		id, err := strconv.ParseUint(cmd.Flags().Arg(0), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid opinion id %q", cmd.Flags().Arg(0))
		}

		opinion, err := svc.Flagging.GetOpinion(cmd.Context(), id)
		if err != nil {
			return errs.Wrap(err, "show opinion")
		}

		unix, _ := cmd.Flags().GetBool("unix")
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatOpinion(opinion, unix)); err != nil {
			return errs.Wrap(err, "write opinion output")
		}
		return nil
	}),
}

func init() {
	opinionCreateCmd.Flags().String("notes", "", "Free-text comment on the decision")
	opinionCreateCmd.Flags().String("instrument", "", "Name of instrument the opinion applies to")
	opinionCreateCmd.Flags().IntSlice("freq", nil, "List of affected frequency IDs")
	opinionCreateCmd.Flags().IntSlice("inputs", nil, "List of affected input IDs")
	opinionCreateCmd.Flags().String("metadata", "", "Extra metadata as a JSON object")

	opinionEditCmd.Flags().String("decision", "", "Change the decision (good, bad or unsure)")
	opinionEditCmd.Flags().String("type", "", "Change the opinion type")
	opinionEditCmd.Flags().Int64("lsd", 0, "Change the LSD")
	opinionEditCmd.Flags().String("notes", "", "Change the notes")
	opinionEditCmd.Flags().Bool("unix", false, "Show times as Unix seconds")

	opinionListCmd.Flags().String("revision", "", "Only list opinions for this revision")
	opinionListCmd.Flags().String("user", "", "Only list opinions by this user")
	opinionListCmd.Flags().Int64("lsd", 0, "Only list opinions about this LSD")

	opinionShowCmd.Flags().Bool("unix", false, "Show times as Unix seconds")

	opinionCmd.AddCommand(opinionCreateCmd, opinionEditCmd, opinionListCmd, opinionShowCmd)
	rootCmd.AddCommand(opinionCmd)
}

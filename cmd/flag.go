package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dataflag/internal/bootstrap"
	"dataflag/internal/errs"
	"dataflag/internal/usecase/flagging"
)

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "View and modify flagged ranges of data",
}

var flagCreateCmd = &cobra.Command{
	Use:   "create TYPE START FINISH",
	Short: "Create a new data flag",
	Long:  "Create a new data flag with the given TYPE and START and FINISH times. Times accept RFC3339 or Unix seconds.",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		start, err := parseTimeArg(cmd.Flags().Arg(1))
		if err != nil {
			return err
		}
		finish, err := parseTimeArg(cmd.Flags().Arg(2))
		if err != nil {
			return err
		}

		extra, err := metadataFlag(cmd, "metadata")
		if err != nil {
			return err
		}
		instrument, _ := cmd.Flags().GetString("instrument")
		description, _ := cmd.Flags().GetString("description")
		user, _ := cmd.Flags().GetString("user")

		flag, err := svc.Flagging.CreateFlag(cmd.Context(), flagging.CreateFlagInput{
			TypeName:    cmd.Flags().Arg(0),
			StartTime:   start,
			FinishTime:  &finish,
			Instrument:  instrument,
			Freq:        intSliceFlag(cmd, "freq"),
			Inputs:      intSliceFlag(cmd, "inputs"),
			Description: description,
			User:        user,
			Extra:       extra,
		})
		if err != nil {
			return errs.Wrap(err, "create flag")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created flag: %d\n", flag.ID); err != nil {
			return errs.Wrap(err, "write flag output")
		}
		return nil
	}),
}

var flagEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit an existing flag",
	Long:  "Edit the existing flag with ID. This is the manual administrative path; flags created by voting are never touched by the engine again.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		id, err := strconv.ParseUint(cmd.Flags().Arg(0), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid flag id %q", cmd.Flags().Arg(0))
		}

		start, err := timeFlagPtr(cmd, "start")
		if err != nil {
			return err
		}
		finish, err := timeFlagPtr(cmd, "finish")
		if err != nil {
			return err
		}
		extra, err := metadataFlag(cmd, "metadata")
		if err != nil {
			return err
		}
		instrument, _ := cmd.Flags().GetString("instrument")
		description, _ := cmd.Flags().GetString("description")
		user, _ := cmd.Flags().GetString("user")

		flag, err := svc.Flagging.EditFlag(cmd.Context(), flagging.EditFlagInput{
			ID:          id,
			TypeName:    stringFlagPtr(cmd, "type"),
			StartTime:   start,
			FinishTime:  finish,
			Instrument:  instrument,
			Freq:        intSliceFlag(cmd, "freq"),
			Inputs:      intSliceFlag(cmd, "inputs"),
			Description: description,
			User:        user,
			Extra:       extra,
		})
		if err != nil {
			return errs.Wrap(err, "edit flag")
		}

		unix, _ := cmd.Flags().GetBool("unix")
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatFlag(flag, unix)); err != nil {
			return errs.Wrap(err, "write flag output")
		}
		return nil
	}),
}

var flagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known flags",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		start, err := timeFlagPtr(cmd, "start")
		if err != nil {
			return err
		}
		finish, err := timeFlagPtr(cmd, "finish")
		if err != nil {
			return err
		}
		typeName, _ := cmd.Flags().GetString("type")

		flags, err := svc.Flagging.ListFlags(cmd.Context(), flagging.ListFlagsInput{
			TypeName:     typeName,
			ActiveAfter:  start,
			ActiveBefore: finish,
		})
		if err != nil {
			return errs.Wrap(err, "list flags")
		}

		unix, _ := cmd.Flags().GetBool("unix")
		for _, flag := range flags {
			finishStr := "open"
			if flag.FinishTime != nil {
				finishStr = formatTime(*flag.FinishTime, unix)
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n",
				flag.ID, flag.TypeName, formatTime(flag.StartTime, unix), finishStr); err != nil {
				return errs.Wrap(err, "write flag output")
			}
		}
		return nil
	}),
}

var flagShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show information about a flag",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
		id, err := strconv.ParseUint(cmd.Flags().Arg(0), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid flag id %q", cmd.Flags().Arg(0))
		}

		flag, err := svc.Flagging.GetFlag(cmd.Context(), id)
		if err != nil {
			return errs.Wrap(err, "show flag")
		}

		unix, _ := cmd.Flags().GetBool("unix")
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatFlag(flag, unix)); err != nil {
			return errs.Wrap(err, "write flag output")
		}
		return nil
	}),
}

func init() {
	for _, cmd := range []*cobra.Command{flagCreateCmd, flagEditCmd} {
		cmd.Flags().String("instrument", "", "Name of instrument the flag applies to")
		cmd.Flags().IntSlice("freq", nil, "List of frequency IDs to flag")
		cmd.Flags().IntSlice("inputs", nil, "List of input IDs to flag")
		cmd.Flags().String("description", "", "Description of the flag")
		cmd.Flags().String("user", "", "User adding the flag")
		cmd.Flags().String("metadata", "", "Extra metadata as a JSON object")
	}
	flagEditCmd.Flags().String("type", "", "Change the type of the flag")
	flagEditCmd.Flags().String("start", "", "Change the flag start time")
	flagEditCmd.Flags().String("finish", "", "Change the flag finish time")
	flagEditCmd.Flags().Bool("unix", false, "Show times as Unix seconds")

	flagListCmd.Flags().String("type", "", "Only list flags of this type")
	flagListCmd.Flags().String("start", "", "Only list flags active after this time")
	flagListCmd.Flags().String("finish", "", "Only list flags active before this time")
	flagListCmd.Flags().Bool("unix", false, "Show times as Unix seconds")

	flagShowCmd.Flags().Bool("unix", false, "Show times as Unix seconds")

	flagCmd.AddCommand(flagCreateCmd, flagEditCmd, flagListCmd, flagShowCmd)
	rootCmd.AddCommand(flagCmd)
}

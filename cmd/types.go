package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dataflag/internal/bootstrap"
	"dataflag/internal/errs"
	"dataflag/internal/ports"
	"dataflag/internal/usecase/flagging"
)

// The flag type and opinion type catalogs have the same shape; both command
// trees share the handlers below and differ only in the service calls.

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "View and create data flag types",
}

var opinionTypeCmd = &cobra.Command{
	Use:   "opinion-type",
	Short: "View and create opinion types",
}

type catalogOps struct {
	create func(ctx context.Context, svc *services, input flagging.CreateTypeInput) (ports.CatalogType, error)
	list   func(ctx context.Context, svc *services) ([]ports.CatalogType, error)
	get    func(ctx context.Context, svc *services, name string) (ports.CatalogType, error)
}

var flagTypeOps = catalogOps{
	create: func(ctx context.Context, svc *services, input flagging.CreateTypeInput) (ports.CatalogType, error) {
		return svc.Flagging.CreateFlagType(ctx, input)
	},
	list: func(ctx context.Context, svc *services) ([]ports.CatalogType, error) {
		return svc.Flagging.ListFlagTypes(ctx)
	},
	get: func(ctx context.Context, svc *services, name string) (ports.CatalogType, error) {
		return svc.Flagging.GetFlagType(ctx, name)
	},
}

var opinionTypeOps = catalogOps{
	create: func(ctx context.Context, svc *services, input flagging.CreateTypeInput) (ports.CatalogType, error) {
		return svc.Flagging.CreateOpinionType(ctx, input)
	},
	list: func(ctx context.Context, svc *services) ([]ports.CatalogType, error) {
		return svc.Flagging.ListOpinionTypes(ctx)
	},
	get: func(ctx context.Context, svc *services, name string) (ports.CatalogType, error) {
		return svc.Flagging.GetOpinionType(ctx, name)
	},
}

func catalogCreateCmd(kind string, ops catalogOps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: fmt.Sprintf("Create a new %s type", kind),
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
			metadata, err := metadataFlag(cmd, "metadata")
			if err != nil {
				return err
			}

			entry, err := ops.create(cmd.Context(), svc, flagging.CreateTypeInput{
				Name:        cmd.Flags().Arg(0),
				Description: stringFlagPtr(cmd, "description"),
				Metadata:    metadata,
			})
			if err != nil {
				return errs.Wrapf(err, "create %s type", kind)
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "created %s type: %s\n", kind, entry.Name); err != nil {
				return errs.Wrap(err, "write type output")
			}
			return nil
		}),
	}
	cmd.Flags().String("description", "", "Description of the type")
	cmd.Flags().String("metadata", "", "Extra metadata as a JSON object")
	return cmd
}

func catalogListCmd(kind string, ops catalogOps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List known %s types", kind),
		RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
			entries, err := ops.list(cmd.Context(), svc)
			if err != nil {
				return errs.Wrapf(err, "list %s types", kind)
			}

			for _, entry := range entries {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), entry.Name); err != nil {
					return errs.Wrap(err, "write type output")
				}
			}
			return nil
		}),
	}
}

func catalogShowCmd(kind string, ops catalogOps) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: fmt.Sprintf("Show details of a %s type", kind),
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *services) error {
			entry, err := ops.get(cmd.Context(), svc, cmd.Flags().Arg(0))
			if err != nil {
				return errs.Wrapf(err, "show %s type", kind)
			}

			if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatCatalogType(entry)); err != nil {
				return errs.Wrap(err, "write type output")
			}
			return nil
		}),
	}
}

func init() {
	typeCmd.AddCommand(
		catalogCreateCmd("flag", flagTypeOps),
		catalogListCmd("flag", flagTypeOps),
		catalogShowCmd("flag", flagTypeOps),
	)
	opinionTypeCmd.AddCommand(
		catalogCreateCmd("opinion", opinionTypeOps),
		catalogListCmd("opinion", opinionTypeOps),
		catalogShowCmd("opinion", opinionTypeOps),
	)

	rootCmd.AddCommand(typeCmd, opinionTypeCmd)
}

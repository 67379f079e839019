package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ceyewan/ticketing/internal/bootstrap"
	"github.com/ceyewan/ticketing/partition"
)

func newPartitionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Provision and inspect id partitions",
	}

	provision := &cobra.Command{
		Use:   "provision",
		Short: "Split the configured id space into partitions and store them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, app *bootstrap.App) error {
				partitions, err := app.Provision(ctx)
				if err != nil {
					return err
				}
				first, last := partitions[0], partitions[len(partitions)-1]
				result := map[string]any{
					"count":     len(partitions),
					"min_id":    first.RangeStart,
					"max_id":    last.RangeEnd,
					"range_len": app.Config.Partition.PerRangeSize,
				}
				return opts.print(cmd.OutOrStdout(), result, func(w io.Writer) {
					printf(w, "provisioned %d partitions covering [%d, %d]\n",
						len(partitions), first.RangeStart, last.RangeEnd)
				})
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show how much of the id space has been issued",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, app *bootstrap.App) error {
				store, err := app.Store(ctx)
				if err != nil {
					return err
				}
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				if stats.Total == 0 {
					return partition.ErrNotProvisioned
				}
				return opts.print(cmd.OutOrStdout(), stats, func(w io.Writer) {
					printf(w, "partitions: %d (%d exhausted, %d available)\n",
						stats.Total, stats.Exhausted, stats.Total-stats.Exhausted)
					printf(w, "issued:     %d\n", stats.Issued)
					printf(w, "remaining:  %d\n", stats.Remaining)
				})
			})
		},
	}

	cmd.AddCommand(provision, status)
	return cmd
}

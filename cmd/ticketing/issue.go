package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ceyewan/ticketing/internal/bootstrap"
)

func newIssueCmd(opts *rootOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Claim ids and print their codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, app *bootstrap.App) error {
				iss, err := app.Issuer(ctx)
				if err != nil {
					return err
				}
				codes, err := iss.IssueN(ctx, count)
				printErr := opts.print(cmd.OutOrStdout(), codes, func(w io.Writer) {
					for _, c := range codes {
						printf(w, "%s\t%d\t%d\n", c.Code, c.ID, c.PartitionID)
					}
				})
				if err != nil {
					return err
				}
				return printErr
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of codes to issue")
	return cmd
}

package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ceyewan/ticketing/internal/bootstrap"
)

func newAlphabetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alphabet",
		Short: "Manage the symbol table used to encode ids",
	}

	var force bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate and save a random symbol table",
		Long: `Generate a random bijection from 6-bit values to symbols and save it to alphabet.path.

The table must be generated once per deployment and shared by every process.
An existing table is never replaced unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(_ context.Context, app *bootstrap.App) error {
				table, err := app.GenerateAlphabet(force)
				if err != nil {
					return err
				}
				result := map[string]any{
					"path":    app.Config.Alphabet.Path,
					"size":    table.Len(),
					"symbols": table.Symbols(),
				}
				return opts.print(cmd.OutOrStdout(), result, func(w io.Writer) {
					printf(w, "wrote %d-symbol table to %s\n", table.Len(), app.Config.Alphabet.Path)
				})
			})
		},
	}
	generate.Flags().BoolVar(&force, "force", false, "overwrite an existing table")

	cmd.AddCommand(generate)
	return cmd
}

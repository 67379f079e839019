package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ceyewan/ticketing/clog"
	"github.com/ceyewan/ticketing/internal/bootstrap"
)

type rootOptions struct {
	configFile string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ticketing",
		Short:         "Partitioned id allocation and compact code issuing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./ticketing.yaml or ./config/ticketing.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print results as JSON")

	cmd.AddCommand(
		newAlphabetCmd(opts),
		newPartitionCmd(opts),
		newIssueCmd(opts),
	)
	return cmd
}

// run 加载配置、创建 App，执行 fn 后释放资源
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, loader, err := bootstrap.Load(ctx, o.configFile, clog.Discard())
	if err != nil {
		return err
	}
	app, err := bootstrap.New(cfg)
	if err != nil {
		return err
	}
	if err := app.WatchLogLevel(ctx, loader); err != nil {
		app.Logger.Debug("log level watch disabled", clog.Error(err))
	}

	runErr := fn(ctx, app)
	if err := app.Close(context.WithoutCancel(ctx)); err != nil {
		app.Logger.Warn("shutdown incomplete", clog.Error(err))
	}
	return runErr
}

func (o *rootOptions) print(w io.Writer, v any, text func(w io.Writer)) error {
	if o.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bank-records/internal/app"
	"bank-records/internal/config"
	"bank-records/internal/service"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type globalOptions struct {
	ConfigPath string
	Teller     string
	JSON       bool
}

type commandDeps struct {
	out     io.Writer
	errOut  io.Writer
	build   BuildInfo
	globals *globalOptions
	open    func(ctx context.Context) (*app.App, error)
}

// NewRootCommand builds the command tree. Command output, including JSON
// error envelopes, goes to out. Text-mode errors go to errOut.
func NewRootCommand(out, errOut io.Writer, build BuildInfo) *cobra.Command {
	globals := &globalOptions{}
	deps := commandDeps{out: out, errOut: errOut, build: build, globals: globals}
	deps.open = func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load(globals.ConfigPath)
		if err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, app.Options{Version: build.Version, Teller: globals.Teller})
	}

	cmd := &cobra.Command{
		Use:           app.Name,
		Short:         "Teller tool for the bank account record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	cmd.PersistentFlags().StringVar(&globals.ConfigPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&globals.Teller, "teller", "", "Teller recorded in the audit log (overrides audit.teller)")
	cmd.PersistentFlags().BoolVar(&globals.JSON, "json", false, "Print output as JSON")

	cmd.AddCommand(
		newVersionCommand(deps),
		newOpenCommand(deps),
		newCloseCommand(deps),
		newShowCommand(deps),
		newListCommand(deps),
		newLodgeCommand(deps),
		newWithdrawCommand(deps),
	)
	return cmd
}

func newVersionCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.globals.JSON {
				return writeJSON(deps.out, deps.build)
			}
			_, err := fmt.Fprintf(deps.out, "version=%s commit=%s build_time=%s\n",
				deps.build.Version, deps.build.Commit, deps.build.BuildTime)
			return err
		},
	}
}

// withService opens the application for the duration of fn. Failures are
// written for the user, raised as security events when they are not routine,
// and returned as an ExitError.
func withService(ctx context.Context, deps commandDeps, fn func(context.Context, *service.AccountService) error) error {
	a, err := deps.open(ctx)
	if err != nil {
		return deps.fail(err)
	}
	defer a.Close()

	if err := fn(ctx, a.Service); err != nil {
		a.Service.ReportFailure(ctx, err)
		return deps.fail(err)
	}
	return nil
}

func (d commandDeps) fail(err error) error {
	w := d.errOut
	if d.globals.JSON {
		w = d.out
	}
	_ = writeError(w, d.globals.JSON, toAppError(err))
	return &ExitError{Code: exitCodeFor(err), Err: err, Reported: true}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s accepts %d argument(s), received %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// Package cli implements the pantryctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/pantry"
	"github.com/unkn0wn-root/querycache/transport"
)

type app struct {
	cfgPath string
	output  string
	metrics bool

	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer

	unauthorized atomic.Bool
}

// session is one command's wiring: cache client, API transport and the pantry
// service on top of both.
type session struct {
	svc *pantry.Service
	qc  *querycache.Client
	reg *prometheus.Registry
	out *printer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(out, errOut)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:           "pantryctl",
		Short:         "Pantry and recipe client with a consistent local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to the config file (default ~/.pantryctl/config.yaml)")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table|json")
	cmd.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "print cache counters to stderr on exit")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		a.cfg = cfg
		return nil
	}

	cmd.AddCommand(
		newSummaryCmd(a),
		newItemsCmd(a),
		newExpiringCmd(a),
		newFindCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newUseCmd(a),
		newDeleteCmd(a),
		newRecipesCmd(a),
		newMeCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

// run builds a session, calls fn and tears the session down.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := newPrinter(a.stdout, a.output)
	if err != nil {
		return err
	}

	log, flush, err := a.cfg.NewLogger(a.stderr)
	if err != nil {
		return err
	}
	defer flush()

	reg := prometheus.NewRegistry()
	hooks, stopHooks, err := a.cfg.NewHooks(reg, a.stderr)
	if err != nil {
		return err
	}
	opts, err := a.cfg.ClientOptions(ctx, log, hooks)
	if err != nil {
		stopHooks()
		return err
	}
	opts.OnUnauthorized = func() {
		if a.unauthorized.CompareAndSwap(false, true) {
			fmt.Fprintf(a.stderr, "session rejected by the server; check %s\n", config.EnvToken)
		}
	}
	qc, err := querycache.New(opts)
	if err != nil {
		stopHooks()
		return err
	}
	api, err := transport.New(a.cfg.TransportConfig(log))
	if err != nil {
		_ = qc.Close(ctx)
		stopHooks()
		return err
	}

	s := &session{
		svc: pantry.New(qc, api, a.cfg.PantryOptions(log)),
		qc:  qc,
		reg: reg,
		out: p,
	}
	err = fn(ctx, s)

	if cerr := qc.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
		err = cerr
	}
	stopHooks()
	if a.metrics {
		a.dumpMetrics(reg)
	}
	return err
}

func (a *app) dumpMetrics(reg *prometheus.Registry) {
	mfs, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(a.stderr, "metrics: %v\n", err)
		return
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(a.stderr, mf); err != nil {
			fmt.Fprintf(a.stderr, "metrics: %v\n", err)
			return
		}
	}
}

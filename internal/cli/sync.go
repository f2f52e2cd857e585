package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/oilsync/internal/metrics"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/syncer"
	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync pass",
		Long: "Drain the form queue, then the payment queue, then refresh every\n" +
			"cached screen. Rows that fail stay queued for the next pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *oilsync.Engine) error {
				rep, err := eng.SyncAll(cmd.Context(), a.identity())
				if err != nil {
					return err
				}
				return a.print(cmd, rep, func(w io.Writer) { printReport(w, rep) })
			})
		},
	}
}

func printReport(w io.Writer, rep syncer.Report) {
	switch {
	case rep.Skipped:
		fmt.Fprintln(w, "sync skipped: no signed-in owner, or a pass is already running")
		return
	case rep.Offline:
		fmt.Fprintln(w, "offline: nothing synced")
		return
	}
	fmt.Fprintf(w, "forms:     synced=%d failed=%d deferred=%d\n",
		rep.Forms.Synced, rep.Forms.Failed, rep.Forms.Deferred)
	fmt.Fprintf(w, "payments:  synced=%d failed=%d deferred=%d\n",
		rep.Payments.Synced, rep.Payments.Failed, rep.Payments.Deferred)
	fmt.Fprintf(w, "refreshed: %d screens in %s\n", len(rep.Refreshed), rep.Duration.Round(time.Millisecond))
}

func newRunCmd(a *app) *cobra.Command {
	var probeInterval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync in the foreground until interrupted",
		Long: "Repeat sync passes on the configured interval and whenever the\n" +
			"probe sees the API come back. Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.withEngine(func(eng *oilsync.Engine) error {
				return a.run(ctx, eng, probeInterval)
			})
		},
	}
	cmd.Flags().DurationVar(&probeInterval, "probe-interval", netstate.DefaultProbeInterval, "how often probe_url is polled")
	return cmd
}

func (a *app) run(ctx context.Context, eng *oilsync.Engine, probeInterval time.Duration) error {
	if a.cfg.MetricsAddr != "" {
		srv := metrics.SetupMetricsEndpoint(a.cfg.MetricsAddr, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.ProbeURL != "" {
		probe := &netstate.HTTPProbe{URL: a.cfg.ProbeURL, Interval: probeInterval}
		g.Go(func() error { return eng.Observer().Run(ctx, probe) })
	}
	runner := eng.NewRunner(a.identity, a.cfg.SyncInterval, eng.Observer().Reconnected())
	g.Go(func() error { return runner.Run(ctx) })

	a.logger.Infow("sync loop started", "interval", a.cfg.SyncInterval, "probe_url", a.cfg.ProbeURL)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Infow("sync loop stopped")
		return nil
	}
	return err
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/queuegate/internal/alert"
	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/internal/engine"
	"github.com/dwsmith1983/queuegate/internal/provider/memory"
	"github.com/dwsmith1983/queuegate/internal/recorder"
	"github.com/dwsmith1983/queuegate/internal/telemetry"
	"github.com/dwsmith1983/queuegate/internal/watcher"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	dir           string
	statePath     string
	executors     int
	completeAfter time.Duration
}

// NewRunCmd creates the run command.
func NewRunCmd(version string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the admission watcher until interrupted",
		Long: `Starts the scheduling loop over an in-memory host: every interval each
waiting item is put through admission, admitted items are started on free
executors and decisions are recorded to the configured sink.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd.Context(), version, opts)
		},
	}

	addDirFlag(cmd, &opts.dir)
	cmd.Flags().StringVar(&opts.statePath, "state", "", "Host snapshot to start from")
	cmd.Flags().IntVar(&opts.executors, "executors", 2, "Executors on the built-in node when the snapshot defines no nodes")
	cmd.Flags().DurationVar(&opts.completeAfter, "complete-after", 0, "Complete started builds as SUCCESS after this long (0 leaves them running)")
	return cmd
}

func runWatcher(parent context.Context, version string, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	host, err := buildHost(cfg, logger)
	if err != nil {
		return err
	}
	state := &types.HostState{}
	if opts.statePath != "" {
		if state, err = config.LoadState(opts.statePath); err != nil {
			return err
		}
	}
	if err := host.Seed(*state); err != nil {
		return err
	}
	if len(state.Nodes) == 0 {
		host.AddNode("built-in", opts.executors)
	}

	recOpts, err := recorder.OptionsFromConfig(cfg.Recorder)
	if err != nil {
		return err
	}
	alerts, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Until the shutdown goroutine owns them, anything acquired below is
	// released on return.
	var td teardown
	running := false
	defer func() {
		if running {
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := td.run(cctx); err != nil {
			logger.Warn("cleanup after failed start", "error", err)
		}
	}()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, version, true)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	td.add("telemetry shutdown", tel.Shutdown)

	sink, err := newSink(cfg)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}
	td.add("stopping sink", sink.Stop)
	if err := sink.Start(ctx); err != nil {
		return fmt.Errorf("starting sink: %w", err)
	}

	rec := recorder.New(sink, recOpts, logger)

	disp := engine.New(host, host)
	disp.SetLogger(logger)
	disp.SetRecorder(rec)
	disp.SetMeterProvider(tel.MeterProvider)
	disp.SetTracerProvider(tel.TracerProvider)

	var wcfg types.WatcherConfig
	if cfg.Watcher != nil {
		wcfg = *cfg.Watcher
	}
	w := watcher.New(host, disp, alerts.AlertFunc(), logger, wcfg)

	rec.Start(ctx)
	w.Start(ctx)
	running = true
	color.Green("queuegate running: %d jobs, %d queued, sink=%s", len(cfg.Jobs), len(host.Waiting()), cfg.Sink)

	g, gctx := errgroup.WithContext(ctx)
	if opts.completeAfter > 0 {
		g.Go(func() error {
			completeBuilds(gctx, host, opts.completeAfter, logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		color.Yellow("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		w.Stop(shutdownCtx)
		rec.Stop(shutdownCtx)
		if err := td.run(shutdownCtx); err != nil {
			return err
		}
		logger.Info("stopped", "written", rec.Written(), "dropped", rec.Dropped(), "failed", rec.Failed())
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	color.Green("queuegate stopped gracefully")
	return nil
}

// teardown releases resources in the reverse order they were acquired.
type teardown []teardownStep

type teardownStep struct {
	name string
	fn   func(context.Context) error
}

func (t *teardown) add(name string, fn func(context.Context) error) {
	*t = append(*t, teardownStep{name: name, fn: fn})
}

// run calls every step, even after a failure, and joins the errors.
func (t teardown) run(ctx context.Context) error {
	var errs []error
	for i := len(t) - 1; i >= 0; i-- {
		if err := t[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// completeBuilds finishes builds that have been running longer than after,
// freeing their executors for the next pass.
func completeBuilds(ctx context.Context, host *memory.Host, after time.Duration, logger *slog.Logger) {
	tick := after / 2
	if tick <= 0 {
		tick = after
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, name := range host.Jobs() {
				for _, r := range host.Runs(name) {
					if !r.Building || now.Sub(r.StartedAt) < after {
						continue
					}
					if err := host.CompleteRun(name, r.Number, types.ResultSuccess); err != nil {
						logger.Warn("failed to complete build", "job", name, "run", r.Number, "error", err)
						continue
					}
					logger.Info("build completed", "job", name, "run", r.Number)
				}
			}
		}
	}
}

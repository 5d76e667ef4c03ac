package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/internal/engine"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/recorder"
	"github.com/dwsmith1983/queuegate/internal/watcher"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

const evaluateTimeout = 2 * time.Minute

type evaluateOptions struct {
	dir       string
	statePath string
	pass      bool
	history   int
}

// NewEvaluateCmd creates the evaluate command.
func NewEvaluateCmd() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Decide admission for every queued item in a host snapshot",
		Long: `Loads a host snapshot (runs, queue and executors), evaluates each waiting
item's condition chain against it and prints the verdicts. With --pass a full
scheduling pass runs instead, applying the default policy and starting
admitted builds on free executors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.OutOrStdout(), opts)
		},
	}

	addDirFlag(cmd, &opts.dir)
	cmd.Flags().StringVar(&opts.statePath, "state", "", "Host snapshot file, YAML or JSON (required)")
	cmd.Flags().BoolVar(&opts.pass, "pass", false, "Run a full scheduling pass")
	cmd.Flags().IntVar(&opts.history, "history", 0, "Also print up to N recorded decisions per job")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func runEvaluate(w io.Writer, opts evaluateOptions) error {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	state, err := config.LoadState(opts.statePath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	sink, err := newSink(cfg)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
	defer cancel()
	return evaluateState(ctx, w, cfg, state, sink, opts, logger)
}

// evaluateState seeds a host from state, decides its waiting items and
// prints the outcome. Decisions are recorded to sink.
func evaluateState(ctx context.Context, w io.Writer, cfg *types.ProjectConfig, state *types.HostState,
	sink provider.DecisionSink, opts evaluateOptions, logger *slog.Logger) error {
	host, err := buildHost(cfg, logger)
	if err != nil {
		return err
	}
	if err := host.Seed(*state); err != nil {
		return err
	}

	if err := sink.Start(ctx); err != nil {
		return fmt.Errorf("starting sink: %w", err)
	}
	defer func() { _ = sink.Stop(context.Background()) }()

	recOpts, err := recorder.OptionsFromConfig(cfg.Recorder)
	if err != nil {
		return err
	}
	rec := recorder.New(sink, recOpts, logger)
	rec.Start(ctx)

	disp := engine.New(host, host)
	disp.SetLogger(logger)
	disp.SetRecorder(rec)

	bold := color.New(color.Bold)
	waiting := host.Waiting()
	_, _ = bold.Fprintf(w, "\nQueue: %d waiting, %d buildable\n", len(waiting), len(host.Buildable()))

	if opts.pass {
		var wcfg types.WatcherConfig
		if cfg.Watcher != nil {
			wcfg = *cfg.Watcher
		}
		res := watcher.New(host, disp, nil, logger, wcfg).Pass(ctx)
		for _, item := range host.Waiting() {
			printVerdict(w, item, types.Block(item.Cause()))
		}
		for _, s := range res.Started {
			_, _ = color.New(color.FgCyan).Fprintf(w, "  ▶ #%d %s started as #%d on %s\n", s.Item.ID, s.Item.JobName, s.Run.Number, s.Node)
		}
		fmt.Fprintf(w, "\nAdmitted %d, blocked %d, started %d\n", res.Admitted, res.Blocked, len(res.Started))
	} else {
		for _, item := range waiting {
			printVerdict(w, item, disp.Decide(ctx, item))
		}
	}

	rec.Stop(ctx)

	if opts.history > 0 {
		return printHistory(ctx, w, sink, jobsOf(waiting), opts.history)
	}
	return nil
}

func jobsOf(items []*types.WorkItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if !seen[it.JobName] {
			seen[it.JobName] = true
			out = append(out, it.JobName)
		}
	}
	return out
}

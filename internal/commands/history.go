package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

const historyTimeout = 10 * time.Second

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	var (
		dir   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history [job-name...]",
		Short: "Show recorded admission decisions for jobs",
		Long:  "Reads the decision audit trail from the configured sink. Without arguments every configured job is shown.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.OutOrStdout(), dir, args, limit)
		},
	}

	addDirFlag(cmd, &dir)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Decisions per job")
	return cmd
}

func runHistory(w io.Writer, dir string, jobs []string, limit int) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Sink == types.SinkMemory {
		return fmt.Errorf("the memory sink keeps no history between runs; configure redis or dynamodb")
	}

	sink, err := newSink(cfg)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := sink.Start(ctx); err != nil {
		return fmt.Errorf("connecting to sink: %w", err)
	}
	defer func() { _ = sink.Stop(ctx) }()

	if len(jobs) == 0 {
		for _, j := range cfg.Jobs {
			jobs = append(jobs, j.Name)
		}
	}
	return printHistory(ctx, w, sink, jobs, limit)
}

// printHistory lists recent decisions for each job, oldest first.
func printHistory(ctx context.Context, w io.Writer, sink provider.DecisionSink, jobs []string, limit int) error {
	bold := color.New(color.Bold)
	for _, job := range jobs {
		decisions, err := sink.ListDecisions(ctx, job, limit)
		if err != nil {
			return fmt.Errorf("listing decisions for %s: %w", job, err)
		}

		_, _ = bold.Fprintf(w, "\nJob: %s\n", job)
		if len(decisions) == 0 {
			fmt.Fprintln(w, "  no decisions recorded")
			continue
		}
		for _, d := range decisions {
			verdict := string(d.Verdict)
			switch d.Verdict {
			case types.VerdictBlock:
				verdict = color.RedString(verdict)
			case types.VerdictForceUnblock:
				verdict = color.CyanString(verdict)
			default:
				verdict = color.GreenString(verdict)
			}
			fmt.Fprintf(w, "  %s  item=%-6d %-24s %s\n", d.DecidedAt.Format(time.RFC3339), d.ItemID, verdict, d.Reason)
		}
	}
	return nil
}

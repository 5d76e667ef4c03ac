// Package commands implements the CLI subcommands for the queuegate binary.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/internal/provider"
	ddbprov "github.com/dwsmith1983/queuegate/internal/provider/dynamodb"
	"github.com/dwsmith1983/queuegate/internal/provider/memory"
	"github.com/dwsmith1983/queuegate/internal/provider/redis"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// addDirFlag registers the --dir flag shared by commands that read
// queuegate.yaml.
func addDirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVarP(dir, "dir", "C", ".", "Directory containing "+config.FileName)
}

// newSink creates the configured decision sink.
func newSink(cfg *types.ProjectConfig) (provider.DecisionSink, error) {
	switch cfg.Sink {
	case types.SinkMemory, "":
		return memory.NewSink(0), nil
	case types.SinkRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when sink is redis")
		}
		return redis.New(cfg.Redis), nil
	case types.SinkDynamoDB:
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when sink is dynamodb")
		}
		return ddbprov.New(cfg.DynamoDB)
	default:
		return nil, fmt.Errorf("unsupported sink: %s", cfg.Sink)
	}
}

// buildHost registers every configured job in a fresh in-memory host.
func buildHost(cfg *types.ProjectConfig, logger *slog.Logger) (*memory.Host, error) {
	host := memory.New(condition.DefaultRegistry(), logger)
	for _, j := range cfg.Jobs {
		if err := host.RegisterJob(j); err != nil {
			return nil, fmt.Errorf("registering job: %w", err)
		}
	}
	return host, nil
}

// newLogger builds the process logger on stderr.
func newLogger(cfg *types.ProjectConfig) (*slog.Logger, error) {
	return config.NewLogger(cfg.Log, os.Stderr)
}

// printVerdict writes one line describing an item's verdict.
func printVerdict(w io.Writer, item *types.WorkItem, v types.Verdict) {
	label := fmt.Sprintf("#%d %s", item.ID, item.JobName)
	switch v.Kind {
	case types.VerdictBlock:
		_, _ = color.New(color.FgRed).Fprintf(w, "  ✗ %-40s BLOCK  %s\n", label, v.Reason())
	case types.VerdictForceUnblock:
		_, _ = color.New(color.FgCyan).Fprintf(w, "  ↑ %-40s FORCE_UNBLOCK\n", label)
	default:
		_, _ = color.New(color.FgGreen).Fprintf(w, "  ✓ %-40s PROCEED\n", label)
	}
}

package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/resolver"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	var (
		dir    string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check job condition configuration",
		Long: `Loads queuegate.yaml and every job it defines, then checks each condition
the way the configuration form would: condition targets must exist relative
to the job's folder. Warnings are configurations that load but will block
at evaluation time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), dir, strict)
		},
	}

	addDirFlag(cmd, &dir)
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func runValidate(w io.Writer, dir string, strict bool) error {
	cfg, err := config.Load(dir)
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

	warnings := checkJobs(w, cfg.Jobs, host)
	if warnings > 0 && strict {
		return fmt.Errorf("%d condition warnings", warnings)
	}
	return nil
}

// checkJobs prints the problems found for each job and returns how many
// there were.
func checkJobs(w io.Writer, jobs []types.JobConfig, view provider.SchedulerView) int {
	reg := condition.DefaultRegistry()
	total := 0
	for _, j := range jobs {
		name, _ := resolver.Join("", j.Name)
		problems := condition.Validate(reg, view, resolver.Parent(name), j.Conditions)
		if len(problems) == 0 {
			_, _ = color.New(color.FgGreen).Fprintf(w, "  ✓ %s (%d conditions)\n", name, len(j.Conditions))
			continue
		}
		total += len(problems)
		_, _ = color.New(color.FgYellow).Fprintf(w, "  ⚠ %s\n", name)
		for _, p := range problems {
			fmt.Fprintf(w, "      %s\n", p)
		}
	}
	return total
}

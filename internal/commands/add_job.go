package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

type addJobOptions struct {
	dir        string
	name       string
	kind       string
	concurrent bool
	building   []string
	resultOf   []string
	threshold  string
	patterns   []string
}

// NewAddJobCmd creates the add-job command.
func NewAddJobCmd() *cobra.Command {
	var opts addJobOptions

	cmd := &cobra.Command{
		Use:   "add-job",
		Short: "Write a new job definition with its condition chain",
		Long: `Writes <jobDir>/<name>.yaml. Conditions are added in flag order: building
targets first, then result targets, then one regex condition holding every
--pattern line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runAddJob(opts)
			if err != nil {
				return err
			}
			color.Green("Job %q written to %s", opts.name, path)
			return nil
		},
	}

	addDirFlag(cmd, &opts.dir)
	cmd.Flags().StringVar(&opts.name, "name", "", "Job full name (required)")
	cmd.Flags().StringVar(&opts.kind, "kind", string(types.KindFreestyle), "Job kind")
	cmd.Flags().BoolVar(&opts.concurrent, "concurrent", false, "Allow concurrent builds")
	cmd.Flags().StringArrayVar(&opts.building, "building", nil, "Block while this job is building")
	cmd.Flags().StringArrayVar(&opts.resultOf, "result-of", nil, "Block when this job's last result is at least --threshold")
	cmd.Flags().StringVar(&opts.threshold, "threshold", "", "Result threshold: SUCCESS, UNSTABLE or FAILURE")
	cmd.Flags().StringArrayVar(&opts.patterns, "pattern", nil, "Block while a queued or running job matches")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runAddJob(opts addJobOptions) (string, error) {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	if len(cfg.JobDirs) == 0 {
		return "", fmt.Errorf("no jobDirs configured in %s", config.FileName)
	}

	job := jobFromOptions(opts)
	if problems := condition.Validate(condition.DefaultRegistry(), nil, "", job.Conditions); condition.HasFatal(problems) {
		return "", fmt.Errorf("invalid conditions: %s", problems[0])
	}

	jobDir := cfg.JobDirs[0]
	if !filepath.IsAbs(jobDir) {
		jobDir = filepath.Join(opts.dir, jobDir)
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("creating job dir: %w", err)
	}

	data, err := yaml.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshaling job: %w", err)
	}
	path := filepath.Join(jobDir, strings.ReplaceAll(job.Name, "/", "_")+".yaml")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("job file %s already exists", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing job file: %w", err)
	}
	return path, nil
}

func jobFromOptions(opts addJobOptions) types.JobConfig {
	job := types.JobConfig{
		Name:       opts.name,
		Kind:       types.ItemKind(opts.kind),
		Concurrent: opts.concurrent,
	}
	for _, p := range opts.building {
		job.Conditions = append(job.Conditions, types.ConditionConfig{Type: types.ConditionBuilding, Project: p})
	}
	for _, p := range opts.resultOf {
		job.Conditions = append(job.Conditions, types.ConditionConfig{Type: types.ConditionResult, Project: p, Result: opts.threshold})
	}
	if len(opts.patterns) > 0 {
		job.Conditions = append(job.Conditions, types.ConditionConfig{
			Type:     types.ConditionRegex,
			Patterns: strings.Join(opts.patterns, "\n"),
		})
	}
	return job
}

// Package config handles loading and validation of queuegate.yaml project
// configuration, job definition files and host state snapshots.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// FileName is the project configuration file looked up by Load.
const FileName = "queuegate.yaml"

// Load reads and parses queuegate.yaml from the given directory, appends
// the jobs found in its jobDirs and validates the result.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Sink == "" {
		cfg.Sink = types.SinkMemory
	}

	for _, jd := range cfg.JobDirs {
		if !filepath.IsAbs(jd) {
			jd = filepath.Join(dir, jd)
		}
		jobs, err := LoadJobDir(jd)
		if err != nil {
			return nil, fmt.Errorf("loading jobs from %s: %w", jd, err)
		}
		cfg.Jobs = append(cfg.Jobs, jobs...)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadJobDir loads all job YAML files from a directory. A missing directory
// yields no jobs.
func LoadJobDir(dir string) ([]types.JobConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []types.JobConfig
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		var j types.JobConfig
		if err := yaml.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		if j.Name == "" {
			return nil, fmt.Errorf("%s: job name is required", name)
		}
		jobs = append(jobs, j)
	}

	return jobs, nil
}

// LoadState reads a host state snapshot. JSON is accepted as well as YAML.
func LoadState(path string) (*types.HostState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	return ParseState(data)
}

// ParseState decodes a host state snapshot.
func ParseState(data []byte) (*types.HostState, error) {
	var st types.HostState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	for name, runs := range st.Runs {
		for _, r := range runs {
			if r.Result != "" && !r.Result.Valid() {
				return nil, fmt.Errorf("parsing state: %s #%d: invalid result %q", name, r.Number, r.Result)
			}
		}
	}
	return &st, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *types.LogConfig, w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		if cfg.Level != "" {
			if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
				return nil, fmt.Errorf("log.level: %w", err)
			}
		}
		if cfg.Format != "" {
			format = cfg.Format
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", format)
	}
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Sink {
	case types.SinkMemory:
	case types.SinkRedis:
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when sink is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case types.SinkDynamoDB:
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when sink is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
		if err := checkDuration("dynamodb.retentionTtl", cfg.DynamoDB.RetentionTTL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported sink %q", cfg.Sink)
	}

	if cfg.Watcher != nil {
		if err := checkDuration("watcher.interval", cfg.Watcher.Interval); err != nil {
			return err
		}
		if err := checkDuration("watcher.stuckAfter", cfg.Watcher.StuckAfter); err != nil {
			return err
		}
	}
	if cfg.Recorder != nil {
		if cfg.Recorder.BufferSize < 0 {
			return fmt.Errorf("recorder.bufferSize must not be negative")
		}
		if err := checkDuration("recorder.writeTimeout", cfg.Recorder.WriteTimeout); err != nil {
			return err
		}
		if err := checkDuration("recorder.cooldown", cfg.Recorder.Cooldown); err != nil {
			return err
		}
	}
	if _, err := NewLogger(cfg.Log, io.Discard); err != nil {
		return err
	}
	for i, a := range cfg.Alerts {
		if a.Type == "" {
			return fmt.Errorf("alerts[%d].type is required", i)
		}
	}

	return validateJobs(cfg.Jobs)
}

// validateJobs rejects duplicate names and condition configs that can never
// be built. Soft problems are left for evaluation time.
func validateJobs(jobs []types.JobConfig) error {
	reg := condition.DefaultRegistry()
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if j.Name == "" {
			return fmt.Errorf("job name is required")
		}
		if seen[j.Name] {
			return fmt.Errorf("duplicate job %q", j.Name)
		}
		seen[j.Name] = true

		if j.Kind != "" && !j.Kind.Buildable() && j.Kind != types.KindFolder {
			return fmt.Errorf("job %q: unknown kind %q", j.Name, j.Kind)
		}
		for _, p := range condition.Validate(reg, nil, "", j.Conditions) {
			if p.Fatal {
				return fmt.Errorf("job %q: %s", j.Name, p)
			}
		}
	}
	return nil
}

func checkDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

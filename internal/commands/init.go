package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/queuegate/internal/config"
)

const initValkeyTimeout = 60 * time.Second

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var withValkey bool

	cmd := &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new queuegate project",
		Long:  "Creates a queuegate.yaml, example jobs and a host snapshot. With --valkey the project records decisions to a local Valkey container.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], withValkey)
		},
	}

	cmd.Flags().BoolVar(&withValkey, "valkey", false, "Use the redis sink and start a Valkey container")
	return cmd
}

func runInit(projectName string, withValkey bool) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing queuegate project: %s\n", projectName)

	if err := scaffold(projectName, withValkey); err != nil {
		return err
	}
	color.Green("  ✓ Project scaffolded")

	if withValkey {
		if err := startValkey(); err != nil {
			color.Yellow("  ⚠ Valkey setup skipped: %v", err)
			color.Yellow("    Run manually: docker run -d --name queuegate-valkey -p 6379:6379 valkey/valkey:8")
		} else {
			color.Green("  ✓ Valkey container started")
		}
	}

	fmt.Println()
	_, _ = bold.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  queuegate validate")
	fmt.Println("  queuegate evaluate --state state.yaml")
	fmt.Println("  queuegate run --state state.yaml --complete-after 30s")
	return nil
}

// scaffold writes the starter project files under dir.
func scaffold(dir string, redisSink bool) error {
	if err := os.MkdirAll(filepath.Join(dir, "jobs"), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	sink := "sink: memory\n"
	if redisSink {
		sink = `sink: redis
redis:
  addr: localhost:6379
  keyPrefix: "queuegate:"
`
	}
	files := map[string]string{
		config.FileName: sink + `watcher:
  interval: 5s
  stuckAfter: 30m
log:
  level: info
alerts:
  - type: console
jobDirs:
  - ./jobs
`,
		filepath.Join("jobs", "compile.yaml"): `name: build/compile
`,
		filepath.Join("jobs", "package.yaml"): `name: build/package
conditions:
  # wait while compile runs, and refuse to package a broken compile
  - type: building
    project: compile
  - type: result
    project: compile
    result: UNSTABLE
`,
		filepath.Join("jobs", "deploy.yaml"): `name: deploy
conditions:
  - type: regex
    patterns: |
      # nothing under build/ may be queued or running
      build/.*
`,
		"state.yaml": `runs:
  build/compile:
    - number: 41
      result: SUCCESS
    - number: 42
      building: true
queue:
  - job: build/package
  - job: deploy
nodes:
  - name: built-in
    executors:
      - job: build/compile
      - {}
`,
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func startValkey() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}

	// Reuse an existing container.
	if exec.Command("docker", "inspect", "queuegate-valkey").Run() == nil {
		if err := exec.Command("docker", "start", "queuegate-valkey").Run(); err != nil {
			return fmt.Errorf("starting existing container: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initValkeyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "run", "-d",
		"--name", "queuegate-valkey",
		"-p", "6379:6379",
		"valkey/valkey:8",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

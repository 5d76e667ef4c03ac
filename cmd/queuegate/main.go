package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/queuegate/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "queuegate",
		Short: "Admission control for queued builds",
		Long: `queuegate decides whether a queued work item may run now. Each job carries
an ordered chain of conditions; the first condition that decides wins and
its cause is shown on the queue item.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewAddJobCmd(),
		commands.NewValidateCmd(),
		commands.NewEvaluateCmd(),
		commands.NewHistoryCmd(),
		commands.NewRunCmd(version),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package condition

import (
	"fmt"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Building blocks while the target job's most recent run is in progress.
type Building struct {
	neverUnblocks
	Project string
}

// NewBuilding returns a Building condition for project.
func NewBuilding(project string) *Building {
	return &Building{Project: project}
}

// Type implements Condition.
func (b *Building) Type() types.ConditionType { return types.ConditionBuilding }

// IsBlocked implements Condition.
func (b *Building) IsBlocked(view provider.SchedulerView, item *types.WorkItem) types.CauseOfBlockage {
	// An attached condition with no target must not let everything through.
	if b.Project == "" {
		return types.StaticCause(msgNotSpecified)
	}

	job, cause := resolveTarget(view, b.Project, item)
	if cause != nil {
		return cause
	}

	run, ok := job.LastRun()
	if !ok || !run.Building {
		return nil
	}

	fullName := job.FullName()
	return types.CauseFunc(func() string {
		return fmt.Sprintf("%s is building: %s", fullName, displayName(fullName, run))
	})
}

func displayName(fullName string, run types.Run) string {
	if run.DisplayName != "" {
		return run.DisplayName
	}
	return fmt.Sprintf("%s #%d", fullName, run.Number)
}

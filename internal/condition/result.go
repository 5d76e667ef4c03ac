package condition

import (
	"fmt"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Result blocks while the target job's last completed run is as bad as, or
// worse than, Threshold.
type Result struct {
	neverUnblocks
	Project   string
	Threshold types.Result
}

// NewResult returns a Result condition. An empty threshold defaults to
// UNSTABLE.
func NewResult(project string, threshold types.Result) *Result {
	if threshold == "" {
		threshold = types.ResultUnstable
	}
	return &Result{Project: project, Threshold: threshold}
}

// Type implements Condition.
func (r *Result) Type() types.ConditionType { return types.ConditionResult }

// IsBlocked implements Condition.
func (r *Result) IsBlocked(view provider.SchedulerView, item *types.WorkItem) types.CauseOfBlockage {
	if r.Project == "" || !r.Threshold.Valid() {
		return types.StaticCause(msgBadConfig)
	}

	job, cause := resolveTarget(view, r.Project, item)
	if cause != nil {
		return cause
	}

	run, ok := job.LastCompletedRun()
	if !ok {
		return nil
	}
	if !run.Result.IsWorseOrEqualTo(r.Threshold) {
		return nil
	}

	fullName := job.FullName()
	return types.CauseFunc(func() string {
		return fmt.Sprintf("Last %s build is %s", fullName, run.Result)
	})
}

// Package condition implements the pluggable block/unblock conditions that
// gate a queued work item, and the chain that orders them.
package condition

import (
	"errors"
	"fmt"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Condition is one unit of admission policy. Implementations must be pure
// functions of the item and the live view: they never mutate host state.
type Condition interface {
	Type() types.ConditionType
	// IsBlocked returns a cause when the item must stay queued, nil otherwise.
	IsBlocked(view provider.SchedulerView, item *types.WorkItem) types.CauseOfBlockage
	// IsUnblocked reports whether the item must be admitted immediately,
	// ahead of every later condition and the host's default policy.
	IsUnblocked(view provider.SchedulerView, item *types.WorkItem) bool
}

// neverUnblocks is embedded by conditions that only ever block.
type neverUnblocks struct{}

func (neverUnblocks) IsUnblocked(provider.SchedulerView, *types.WorkItem) bool { return false }

// Chain is an ordered, immutable list of conditions. Order is evaluation
// order: the first decisive condition wins.
type Chain struct {
	conditions []Condition
}

// NewChain builds a chain evaluating conds in the given order.
func NewChain(conds ...Condition) Chain {
	cp := make([]Condition, len(conds))
	copy(cp, conds)
	return Chain{conditions: cp}
}

// Len returns the number of conditions.
func (c Chain) Len() int { return len(c.conditions) }

// At returns the i-th condition.
func (c Chain) At(i int) Condition { return c.conditions[i] }

// Outcome is a chain evaluation result with the deciding condition.
type Outcome struct {
	Verdict types.Verdict
	// Index of the deciding condition, -1 when none decided.
	Index int
	Type  types.ConditionType
}

// Evaluate runs the chain for item. For each condition, in order, a force
// unblock wins first, then a non-empty block cause; an exhausted chain
// proceeds. A condition that panics blocks the item.
func (c Chain) Evaluate(view provider.SchedulerView, item *types.WorkItem) Outcome {
	for i, cond := range c.conditions {
		if v, decided := evaluateOne(cond, view, item); decided {
			return Outcome{Verdict: v, Index: i, Type: cond.Type()}
		}
	}
	return Outcome{Verdict: types.Proceed(), Index: -1}
}

func evaluateOne(cond Condition, view provider.SchedulerView, item *types.WorkItem) (v types.Verdict, decided bool) {
	defer func() {
		if r := recover(); r != nil {
			v = types.Block(types.StaticCause(fmt.Sprintf("%s condition failed: %v", cond.Type(), r)))
			decided = true
		}
	}()

	if cond.IsUnblocked(view, item) {
		return types.ForceUnblock(), true
	}
	if cause := cond.IsBlocked(view, item); cause != nil && cause.ShortDescription() != "" {
		return types.Block(cause), true
	}
	return types.Verdict{}, false
}

// Causes shared by the job-targeting conditions.
const (
	msgNotSpecified = "project is not specified"
	msgBadConfig    = "bad condition configuration"
)

// resolveTarget resolves a project reference for item and converts lookup
// failures into fail-closed causes.
func resolveTarget(view provider.SchedulerView, project string, item *types.WorkItem) (provider.Job, types.CauseOfBlockage) {
	job, err := view.Resolve(project, item.Scope)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil, types.StaticCause(fmt.Sprintf("Job '%s' not found: does not exist", project))
		}
		return nil, types.StaticCause(fmt.Sprintf("Job '%s' could not be resolved: %v", project, err))
	}
	if !job.Buildable() {
		return nil, types.StaticCause(fmt.Sprintf("Job '%s' not found: unknown type '%s'", project, job.Kind()))
	}
	return job, nil
}

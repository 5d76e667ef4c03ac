// Package types defines the public domain types for queuegate admission control.
package types

import (
	"sync/atomic"
	"time"
)

// CauseOfBlockage explains why a work item may not run yet. The description
// is rendered only when someone asks for it.
type CauseOfBlockage interface {
	ShortDescription() string
}

// CauseFunc adapts a closure to CauseOfBlockage.
type CauseFunc func() string

// ShortDescription renders the cause.
func (f CauseFunc) ShortDescription() string { return f() }

// StaticCause is a CauseOfBlockage with a fixed description.
type StaticCause string

// ShortDescription returns the fixed description.
func (s StaticCause) ShortDescription() string { return string(s) }

// Verdict is the outcome of one admission decision.
type Verdict struct {
	Kind  VerdictKind
	Cause CauseOfBlockage
}

// Proceed defers to the host's default scheduling policy.
func Proceed() Verdict { return Verdict{Kind: VerdictProceed} }

// ForceUnblock admits the item, bypassing the host's default policy.
func ForceUnblock() Verdict { return Verdict{Kind: VerdictForceUnblock} }

// Block keeps the item queued for the given cause.
func Block(cause CauseOfBlockage) Verdict { return Verdict{Kind: VerdictBlock, Cause: cause} }

// Blocked reports whether the verdict keeps the item queued.
func (v Verdict) Blocked() bool { return v.Kind == VerdictBlock }

// Reason renders the block cause, or "" when the verdict does not block.
func (v Verdict) Reason() string {
	if v.Kind != VerdictBlock || v.Cause == nil {
		return ""
	}
	return v.Cause.ShortDescription()
}

// WorkItem is a queued candidate for execution. It is owned by the host
// scheduler; admission control only reads it and annotates its cause.
// A WorkItem must not be copied after first use.
type WorkItem struct {
	ID          int64
	JobName     string
	Scope       string
	RootJobName string
	EnqueuedAt  time.Time

	cause atomic.Pointer[causeHolder]
}

type causeHolder struct {
	cause CauseOfBlockage
}

// RootName returns the name of the top-level job this item belongs to.
// For a matrix cell that is its parent matrix job.
func (w *WorkItem) RootName() string {
	if w.RootJobName != "" {
		return w.RootJobName
	}
	return w.JobName
}

// SetCause records why the item is blocked.
func (w *WorkItem) SetCause(c CauseOfBlockage) {
	if c == nil {
		w.ClearCause()
		return
	}
	w.cause.Store(&causeHolder{cause: c})
}

// ClearCause removes any recorded block cause.
func (w *WorkItem) ClearCause() { w.cause.Store(nil) }

// Cause returns the recorded block cause, or nil.
func (w *WorkItem) Cause() CauseOfBlockage {
	if h := w.cause.Load(); h != nil {
		return h.cause
	}
	return nil
}

// Why renders the recorded block cause, or "" when the item is not blocked.
func (w *WorkItem) Why() string {
	if c := w.Cause(); c != nil {
		return c.ShortDescription()
	}
	return ""
}

// Run is one execution of a job.
type Run struct {
	Number      int        `yaml:"number" json:"number"`
	DisplayName string     `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	Building    bool       `yaml:"building,omitempty" json:"building,omitempty"`
	Result      Result     `yaml:"result,omitempty" json:"result,omitempty"`
	StartedAt   time.Time  `yaml:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt *time.Time `yaml:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// ConditionConfig is the persisted form of one condition. Which fields are
// used depends on Type.
type ConditionConfig struct {
	Type     ConditionType `yaml:"type" json:"type"`
	Project  string        `yaml:"project,omitempty" json:"project,omitempty"`
	Result   string        `yaml:"result,omitempty" json:"result,omitempty"`
	Patterns string        `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// JobConfig defines a job and its attached condition chain.
type JobConfig struct {
	Name       string            `yaml:"name" json:"name"`
	Kind       ItemKind          `yaml:"kind,omitempty" json:"kind,omitempty"`
	Concurrent bool              `yaml:"concurrent,omitempty" json:"concurrent,omitempty"`
	Axes       []string          `yaml:"axes,omitempty" json:"axes,omitempty"`
	Conditions []ConditionConfig `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// Decision is the audit record of one admission decision. Cause is the
// unrendered block cause; the recorder turns it into Reason off the
// scheduling path and never persists it.
type Decision struct {
	ID             string          `json:"id"`
	ItemID         int64           `json:"itemId"`
	JobName        string          `json:"jobName"`
	Verdict        VerdictKind     `json:"verdict"`
	Reason         string          `json:"reason,omitempty"`
	ConditionIndex int             `json:"conditionIndex"`
	ConditionType  ConditionType   `json:"conditionType,omitempty"`
	DecidedAt      time.Time       `json:"decidedAt"`
	Duration       time.Duration   `json:"duration"`
	Cause          CauseOfBlockage `json:"-"`
}

// Render fills Reason from Cause and drops the cause.
func (d *Decision) Render() {
	if d.Cause == nil {
		return
	}
	if d.Reason == "" {
		d.Reason = d.Cause.ShortDescription()
	}
	d.Cause = nil
}

// Alert is a notification about a work item that needs attention.
type Alert struct {
	Level     AlertLevel `json:"level"`
	JobName   string     `json:"jobName,omitempty"`
	ItemID    int64      `json:"itemId,omitempty"`
	Message   string     `json:"message"`
	Cause     string     `json:"cause,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

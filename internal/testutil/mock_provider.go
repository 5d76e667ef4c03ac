// Package testutil provides shared test utilities for queuegate.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/resolver"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ provider.SchedulerView = (*FakeView)(nil)
	_ provider.DecisionSink  = (*CaptureSink)(nil)
)

// FakeJob is a static provider.Job.
type FakeJob struct {
	Name string
	K    types.ItemKind
	Runs []types.Run // oldest first
}

func (j *FakeJob) FullName() string { return j.Name }

func (j *FakeJob) Kind() types.ItemKind {
	if j.K == "" {
		return types.KindFreestyle
	}
	return j.K
}

func (j *FakeJob) Buildable() bool { return j.Kind().Buildable() }

func (j *FakeJob) LastRun() (types.Run, bool) {
	if len(j.Runs) == 0 {
		return types.Run{}, false
	}
	return j.Runs[len(j.Runs)-1], true
}

func (j *FakeJob) LastCompletedRun() (types.Run, bool) {
	for i := len(j.Runs) - 1; i >= 0; i-- {
		if !j.Runs[i].Building {
			return j.Runs[i], true
		}
	}
	return types.Run{}, false
}

// FakeView is a mutable in-memory SchedulerView for tests.
type FakeView struct {
	mu        sync.Mutex
	jobs      map[string]*FakeJob
	buildable []string
	busy      []string

	resolveCalls atomic.Int64
}

// NewFakeView creates an empty view.
func NewFakeView() *FakeView {
	return &FakeView{jobs: make(map[string]*FakeJob)}
}

// AddJob registers a job with optional runs, oldest first.
func (v *FakeView) AddJob(name string, kind types.ItemKind, runs ...types.Run) *FakeJob {
	v.mu.Lock()
	defer v.mu.Unlock()
	j := &FakeJob{Name: name, K: kind, Runs: runs}
	v.jobs[name] = j
	return j
}

// SetBuildable replaces the buildable queue snapshot.
func (v *FakeView) SetBuildable(names ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.buildable = names
}

// SetBusy replaces the busy executor snapshot.
func (v *FakeView) SetBusy(names ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.busy = names
}

// ResolveCalls returns how many times Resolve was called.
func (v *FakeView) ResolveCalls() int64 { return v.resolveCalls.Load() }

// Lookup implements provider.Catalog.
func (v *FakeView) Lookup(fullName string) (provider.Job, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	j, ok := v.jobs[fullName]
	if !ok {
		return nil, false
	}
	return j, true
}

func (v *FakeView) Resolve(name, scope string) (provider.Job, error) {
	v.resolveCalls.Add(1)
	return resolver.Resolve(v, name, scope)
}

func (v *FakeView) BuildableItems() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.buildable...)
}

func (v *FakeView) BusySlots() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.busy...)
}

// ScriptedCondition returns fixed answers and counts how often it is asked.
// It satisfies condition.Condition.
type ScriptedCondition struct {
	Tag     types.ConditionType
	Unblock bool
	Cause   string

	BlockedCalls   atomic.Int64
	UnblockedCalls atomic.Int64
}

func (c *ScriptedCondition) Type() types.ConditionType {
	if c.Tag == "" {
		return "scripted"
	}
	return c.Tag
}

func (c *ScriptedCondition) IsBlocked(provider.SchedulerView, *types.WorkItem) types.CauseOfBlockage {
	c.BlockedCalls.Add(1)
	if c.Cause == "" {
		return nil
	}
	return types.StaticCause(c.Cause)
}

func (c *ScriptedCondition) IsUnblocked(provider.SchedulerView, *types.WorkItem) bool {
	c.UnblockedCalls.Add(1)
	return c.Unblock
}

// Calls returns the total number of calls received.
func (c *ScriptedCondition) Calls() int64 {
	return c.BlockedCalls.Load() + c.UnblockedCalls.Load()
}

// CaptureSink is an in-memory DecisionSink that can be told to fail.
type CaptureSink struct {
	mu        sync.Mutex
	decisions []types.Decision
	fail      atomic.Bool
	appends   atomic.Int64
}

// ErrSinkDown is returned by a failing CaptureSink.
var ErrSinkDown = errors.New("sink down")

// NewCaptureSink creates an empty sink.
func NewCaptureSink() *CaptureSink { return &CaptureSink{} }

// SetFailing makes every subsequent append fail.
func (s *CaptureSink) SetFailing(fail bool) { s.fail.Store(fail) }

// Appends returns how many appends were attempted.
func (s *CaptureSink) Appends() int64 { return s.appends.Load() }

func (s *CaptureSink) AppendDecision(_ context.Context, d types.Decision) error {
	s.appends.Add(1)
	if s.fail.Load() {
		return fmt.Errorf("append %s: %w", d.ID, ErrSinkDown)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *CaptureSink) ListDecisions(_ context.Context, jobName string, limit int) ([]types.Decision, error) {
	out := s.DecisionsFor(jobName)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// DecisionsFor returns every captured decision for job, oldest first.
func (s *CaptureSink) DecisionsFor(job string) []types.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Decision
	for _, d := range s.decisions {
		if d.JobName == job {
			out = append(out, d)
		}
	}
	return out
}

// All returns every captured decision.
func (s *CaptureSink) All() []types.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Decision(nil), s.decisions...)
}

func (s *CaptureSink) Start(context.Context) error { return nil }
func (s *CaptureSink) Stop(context.Context) error  { return nil }
func (s *CaptureSink) Ping(context.Context) error  { return nil }

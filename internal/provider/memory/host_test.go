package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

func newHost(t *testing.T, jobs ...types.JobConfig) *Host {
	t.Helper()
	h := New(nil, nil)
	for _, j := range jobs {
		require.NoError(t, h.RegisterJob(j))
	}
	return h
}

func TestRegisterJob_CreatesFolders(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "team/app/build"})

	assert.Equal(t, []string{"team", "team/app", "team/app/build"}, h.Jobs())
	cfg, ok := h.JobConfig("team/app")
	require.True(t, ok)
	assert.Equal(t, types.KindFolder, cfg.Kind)

	build, ok := h.JobConfig("team/app/build")
	require.True(t, ok)
	assert.Equal(t, types.KindFreestyle, build.Kind)
}

func TestRegisterJob_NormalizesName(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "/team/./build"})
	_, ok := h.JobConfig("team/build")
	assert.True(t, ok)
}

func TestRegisterJob_Duplicate(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "a/b"})

	err := h.RegisterJob(types.JobConfig{Name: "a/b"})
	assert.ErrorIs(t, err, ErrJobExists)

	err = h.RegisterJob(types.JobConfig{Name: "a"})
	assert.ErrorIs(t, err, ErrJobExists, "a folder already has that name")

	assert.NoError(t, h.RegisterJob(types.JobConfig{Name: "a", Kind: types.KindFolder}))
}

func TestRegisterJob_ParentMustBeContainer(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "job"})
	err := h.RegisterJob(types.JobConfig{Name: "job/child"})
	assert.ErrorContains(t, err, "not a container")
}

func TestRegisterJob_InvalidConditions(t *testing.T) {
	h := New(nil, nil)

	err := h.RegisterJob(types.JobConfig{Name: "a", Conditions: []types.ConditionConfig{
		{Type: types.ConditionRegex, Patterns: "ok\n(unclosed"},
	}})
	assert.ErrorContains(t, err, `job "a"`)

	err = h.RegisterJob(types.JobConfig{Name: "b", Conditions: []types.ConditionConfig{{Type: "timer"}}})
	assert.ErrorIs(t, err, condition.ErrUnknownType)

	assert.Empty(t, h.Jobs())
}

func TestRegisterJob_MatrixCells(t *testing.T) {
	h := newHost(t, types.JobConfig{
		Name:       "ci/matrix",
		Kind:       types.KindMatrix,
		Axes:       []string{"linux", "windows"},
		Conditions: []types.ConditionConfig{{Type: types.ConditionBuilding, Project: "upstream"}},
	})

	cell, ok := h.JobConfig("ci/matrix/linux")
	require.True(t, ok)
	assert.Equal(t, types.KindMatrixCell, cell.Kind)

	item, err := h.Enqueue("ci/matrix/windows")
	require.NoError(t, err)
	assert.Equal(t, "ci/matrix", item.RootName())
	assert.Equal(t, "ci/matrix", item.Scope)

	chain, ok, err := h.ConditionChain("ci/matrix/linux")
	require.NoError(t, err)
	require.True(t, ok, "cells inherit the matrix chain")
	assert.Equal(t, types.ConditionBuilding, chain.At(0).Type())

	assert.Error(t, h.RegisterJob(types.JobConfig{Name: "x", Kind: types.KindMatrixCell}))
}

func TestConditionChain(t *testing.T) {
	h := newHost(t,
		types.JobConfig{Name: "plain"},
		types.JobConfig{Name: "gated", Conditions: []types.ConditionConfig{
			{Type: types.ConditionResult, Project: "plain", Result: "FAILURE"},
			{Type: types.ConditionRegex, Patterns: "deploy-.*"},
		}},
	)

	_, ok, err := h.ConditionChain("plain")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = h.ConditionChain("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	chain, ok, err := h.ConditionChain("gated")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, chain.Len())
	assert.Equal(t, types.ConditionResult, chain.At(0).Type())
	assert.Equal(t, types.ConditionRegex, chain.At(1).Type())
}

func TestResolve_RelativeAndRoot(t *testing.T) {
	h := newHost(t,
		types.JobConfig{Name: "shared"},
		types.JobConfig{Name: "team/lib"},
		types.JobConfig{Name: "team/app/build"},
	)

	j, err := h.Resolve("../lib", "team/app")
	require.NoError(t, err)
	assert.Equal(t, "team/lib", j.FullName())

	j, err = h.Resolve("shared", "team/app")
	require.NoError(t, err)
	assert.Equal(t, "shared", j.FullName())

	_, err = h.Resolve("./shared", "team/app")
	assert.True(t, errors.Is(err, provider.ErrNotFound))

	j, err = h.Resolve("team", "")
	require.NoError(t, err)
	assert.False(t, j.Buildable())
	assert.Equal(t, types.KindFolder, j.Kind())
}

func TestJobRef_ReadsLiveState(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "up"})
	ref, ok := h.Lookup("up")
	require.True(t, ok)

	_, ok = ref.LastRun()
	assert.False(t, ok)

	run, err := h.AddRun("up", types.Run{Building: true})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Number)

	last, ok := ref.LastRun()
	require.True(t, ok)
	assert.True(t, last.Building)
	_, ok = ref.LastCompletedRun()
	assert.False(t, ok)

	require.NoError(t, h.CompleteRun("up", 1, types.ResultFailure))
	done, ok := ref.LastCompletedRun()
	require.True(t, ok)
	assert.Equal(t, types.ResultFailure, done.Result)
	assert.NotNil(t, done.CompletedAt)
}

func TestCompleteRun_Errors(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "up"})
	_, err := h.AddRun("up", types.Run{Number: 4, Result: types.ResultSuccess})
	require.NoError(t, err)

	assert.ErrorContains(t, h.CompleteRun("up", 4, types.ResultSuccess), "already completed")
	assert.ErrorIs(t, h.CompleteRun("up", 9, types.ResultSuccess), ErrNoSuchRun)
	assert.ErrorContains(t, h.CompleteRun("up", 4, "MEH"), "invalid result")
	assert.ErrorIs(t, h.CompleteRun("nope", 1, types.ResultSuccess), provider.ErrNotFound)

	next, err := h.AddRun("up", types.Run{})
	require.NoError(t, err)
	assert.Equal(t, 5, next.Number)
}

func TestEnqueue_RejectsFolders(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "team/app"})

	_, err := h.Enqueue("team")
	assert.ErrorIs(t, err, ErrNotBuildable)
	_, err = h.Enqueue("ghost")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestQueue_PromoteAndCancel(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "a"}, types.JobConfig{Name: "b"})

	a, err := h.Enqueue("a")
	require.NoError(t, err)
	b, err := h.Enqueue("b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, h.Promote(b.ID))
	assert.Equal(t, []string{"b"}, h.BuildableItems())
	require.Len(t, h.Waiting(), 1)
	assert.Equal(t, a.ID, h.Waiting()[0].ID)

	assert.ErrorIs(t, h.Promote(b.ID), ErrNoSuchItem)
	require.NoError(t, h.Cancel(b.ID))
	require.NoError(t, h.Cancel(a.ID))
	assert.ErrorIs(t, h.Cancel(a.ID), ErrNoSuchItem)
	assert.Empty(t, h.BuildableItems())
}

func TestBusySlots_NodeOrderAndRoots(t *testing.T) {
	h := newHost(t,
		types.JobConfig{Name: "m", Kind: types.KindMatrix, Axes: []string{"x"}},
		types.JobConfig{Name: "a"},
		types.JobConfig{Name: "b"},
	)
	require.NoError(t, h.Seed(types.HostState{
		Nodes: []types.NodeState{
			{Name: "n1", Executors: []types.ExecutorState{{Job: "m/x"}, {}}, OneOff: []types.ExecutorState{{Job: "m"}}},
			{Name: "n2", Executors: []types.ExecutorState{{Job: "b"}}},
		},
	}))

	assert.Equal(t, []string{"m", "m", "b"}, h.BusySlots())
}

func TestSeed(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "a"}, types.JobConfig{Name: "b"})

	err := h.Seed(types.HostState{
		Runs: map[string][]types.Run{
			"a": {{Number: 1, Result: types.ResultSuccess}, {Number: 2, Building: true}},
		},
		Queue: []types.QueuedItem{{Job: "b"}, {Job: "a", Buildable: true}},
		Nodes: []types.NodeState{{Name: "n1", Executors: []types.ExecutorState{{Job: "a"}}}},
	})
	require.NoError(t, err)

	assert.Len(t, h.Runs("a"), 2)
	assert.Equal(t, []string{"a"}, h.BuildableItems())
	require.Len(t, h.Waiting(), 1)
	assert.Equal(t, "b", h.Waiting()[0].JobName)
	assert.Equal(t, []string{"a"}, h.BusySlots())

	err = New(nil, nil).Seed(types.HostState{Queue: []types.QueuedItem{{Job: "ghost"}}})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestSeed_KeepsEnqueueTime(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "a"}, types.JobConfig{Name: "b"})
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, h.Seed(types.HostState{
		Queue: []types.QueuedItem{{Job: "a", EnqueuedAt: at}, {Job: "b"}},
	}))

	waiting := h.Waiting()
	require.Len(t, waiting, 2)
	assert.True(t, waiting[0].EnqueuedAt.Equal(at))
	assert.False(t, waiting[1].EnqueuedAt.IsZero())
	assert.True(t, waiting[1].EnqueuedAt.After(at))
}

func TestStartBuildable(t *testing.T) {
	h := newHost(t,
		types.JobConfig{Name: "a"},
		types.JobConfig{Name: "b"},
		types.JobConfig{Name: "m", Kind: types.KindMatrix},
	)
	h.AddNode("n1", 1)

	for _, name := range []string{"a", "b", "m"} {
		it, err := h.Enqueue(name)
		require.NoError(t, err)
		require.NoError(t, h.Promote(it.ID))
	}

	started := h.StartBuildable()
	require.Len(t, started, 2)
	assert.Equal(t, "a", started[0].Item.JobName)
	assert.Equal(t, "n1", started[0].Node)
	assert.Equal(t, 1, started[0].Run.Number)
	assert.True(t, started[0].Run.Building)
	assert.Equal(t, "m", started[1].Item.JobName, "matrix parents use a one-off executor")

	assert.Equal(t, []string{"b"}, h.BuildableItems())
	assert.Equal(t, []string{"a", "m"}, h.BusySlots())

	require.NoError(t, h.CompleteRun("a", 1, types.ResultSuccess))
	started = h.StartBuildable()
	require.Len(t, started, 1)
	assert.Equal(t, "b", started[0].Item.JobName)
	assert.Empty(t, h.BuildableItems())
}

func TestStartBuildable_SerialJobWaitsForItsRun(t *testing.T) {
	h := newHost(t,
		types.JobConfig{Name: "serial"},
		types.JobConfig{Name: "parallel", Concurrent: true},
	)
	h.AddNode("n1", 4)

	for _, name := range []string{"serial", "serial", "parallel", "parallel"} {
		it, err := h.Enqueue(name)
		require.NoError(t, err)
		require.NoError(t, h.Promote(it.ID))
	}

	started := h.StartBuildable()
	require.Len(t, started, 3)
	assert.Equal(t, []string{"serial"}, h.BuildableItems())

	require.NoError(t, h.CompleteRun("serial", 1, types.ResultSuccess))
	started = h.StartBuildable()
	require.Len(t, started, 1)
	assert.Equal(t, 2, started[0].Run.Number)
}

func TestStartBuildable_NoNodes(t *testing.T) {
	h := newHost(t, types.JobConfig{Name: "a"})
	it, err := h.Enqueue("a")
	require.NoError(t, err)
	require.NoError(t, h.Promote(it.ID))

	assert.Empty(t, h.StartBuildable())
	assert.Equal(t, []string{"a"}, h.BuildableItems())
}

func TestSink_CapAndLimit(t *testing.T) {
	s := NewSink(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendDecision(ctx, types.Decision{ID: fmt.Sprint(i), JobName: "a"}))
	}
	require.NoError(t, s.AppendDecision(ctx, types.Decision{ID: "x", JobName: "b"}))

	got, err := s.ListDecisions(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "4", got[2].ID)

	got, err = s.ListDecisions(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].ID)

	assert.NoError(t, s.Ping(ctx))
}

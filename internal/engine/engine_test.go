package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/testutil"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

type chainMap struct {
	chains map[string]condition.Chain
	err    error
}

func (m *chainMap) ConditionChain(job string) (condition.Chain, bool, error) {
	if m.err != nil {
		return condition.Chain{}, false, m.err
	}
	c, ok := m.chains[job]
	return c, ok, nil
}

type captureRecorder struct {
	mu        sync.Mutex
	decisions []types.Decision
}

func (r *captureRecorder) Record(d types.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func setup(chains map[string]condition.Chain) (*Dispatcher, *testutil.FakeView, *captureRecorder) {
	view := testutil.NewFakeView()
	rec := &captureRecorder{}
	d := New(view, &chainMap{chains: chains})
	d.SetRecorder(rec)
	return d, view, rec
}

func item(job string) *types.WorkItem {
	return &types.WorkItem{ID: 1, JobName: job, EnqueuedAt: time.Now()}
}

func TestDecide_NoChainProceeds(t *testing.T) {
	d, _, rec := setup(nil)
	it := item("job")

	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictProceed, v.Kind)
	assert.Empty(t, it.Why())
	require.Len(t, rec.decisions, 1)
	assert.Equal(t, -1, rec.decisions[0].ConditionIndex)
}

func TestDecide_FirstBlockWinsAndAnnotates(t *testing.T) {
	c3 := &testutil.ScriptedCondition{Cause: "Y", Unblock: true}
	d, _, rec := setup(map[string]condition.Chain{
		"job": condition.NewChain(
			&testutil.ScriptedCondition{},
			&testutil.ScriptedCondition{Tag: types.ConditionRegex, Cause: "X"},
			c3,
		),
	})
	it := item("job")

	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictBlock, v.Kind)
	assert.Equal(t, "X", it.Why())
	assert.Zero(t, c3.Calls())

	require.Len(t, rec.decisions, 1)
	got := rec.decisions[0]
	assert.Empty(t, got.Reason)
	got.Render()
	assert.Equal(t, "X", got.Reason)
	assert.Nil(t, got.Cause)
	assert.Equal(t, 1, got.ConditionIndex)
	assert.Equal(t, types.ConditionRegex, got.ConditionType)
	assert.NotEmpty(t, got.ID)
}

// countingCondition blocks with a cause that counts its renderings.
type countingCondition struct {
	renders atomic.Int64
}

func (c *countingCondition) Type() types.ConditionType { return "counting" }

func (c *countingCondition) IsUnblocked(provider.SchedulerView, *types.WorkItem) bool { return false }

func (c *countingCondition) IsBlocked(provider.SchedulerView, *types.WorkItem) types.CauseOfBlockage {
	return types.CauseFunc(func() string {
		c.renders.Add(1)
		return "held"
	})
}

func TestDecide_RecordingLeavesCauseUnrendered(t *testing.T) {
	cond := &countingCondition{}
	d, _, rec := setup(map[string]condition.Chain{"job": condition.NewChain(cond)})

	v := d.Decide(context.Background(), item("job"))
	require.Equal(t, types.VerdictBlock, v.Kind)
	// The chain renders once to tell an empty cause from a real one.
	assert.Equal(t, int64(1), cond.renders.Load())

	require.Len(t, rec.decisions, 1)
	dec := rec.decisions[0]
	require.NotNil(t, dec.Cause)
	assert.Empty(t, dec.Reason)
	assert.Equal(t, int64(1), cond.renders.Load())

	dec.Render()
	assert.Equal(t, "held", dec.Reason)
	assert.Equal(t, int64(2), cond.renders.Load())
}

func TestDecide_ProceedRecordsNoCause(t *testing.T) {
	d, _, rec := setup(map[string]condition.Chain{"job": condition.NewChain(&testutil.ScriptedCondition{})})

	d.Decide(context.Background(), item("job"))

	require.Len(t, rec.decisions, 1)
	assert.Nil(t, rec.decisions[0].Cause)
	assert.Empty(t, rec.decisions[0].Reason)
}

func TestDecide_ForceUnblockClearsCause(t *testing.T) {
	d, _, _ := setup(map[string]condition.Chain{
		"job": condition.NewChain(&testutil.ScriptedCondition{Unblock: true}),
	})
	it := item("job")
	it.SetCause(types.StaticCause("old"))

	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictForceUnblock, v.Kind)
	assert.Nil(t, it.Cause())
}

func TestDecide_ChainErrorFailsClosed(t *testing.T) {
	d := New(testutil.NewFakeView(), &chainMap{err: errors.New("boom")})
	it := item("job")

	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictBlock, v.Kind)
	assert.Equal(t, "bad condition configuration: boom", it.Why())
}

func TestDecide_BuildingTargetInProgress(t *testing.T) {
	d, view, _ := setup(map[string]condition.Chain{
		"deploy": condition.NewChain(condition.NewBuilding("upstream")),
	})
	view.AddJob("upstream", types.KindFreestyle, types.Run{Number: 7, Building: true})

	it := item("deploy")
	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictBlock, v.Kind)
	assert.Equal(t, "upstream is building: upstream #7", it.Why())
}

func TestDecide_ResultBelowThresholdProceeds(t *testing.T) {
	d, view, _ := setup(map[string]condition.Chain{
		"deploy": condition.NewChain(condition.NewResult("upstream", types.ResultFailure)),
	})
	view.AddJob("upstream", types.KindFreestyle, types.Run{Number: 3, Result: types.ResultUnstable})

	v := d.Decide(context.Background(), item("deploy"))

	assert.Equal(t, types.VerdictProceed, v.Kind)
}

func TestDecide_RegexMatchesBusySlot(t *testing.T) {
	re, err := condition.NewRegex("nightly-.*")
	require.NoError(t, err)
	d, view, _ := setup(map[string]condition.Chain{
		"report": condition.NewChain(re),
	})
	view.SetBusy("nightly-etl")

	it := item("report")
	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictBlock, v.Kind)
	assert.Equal(t, "pattern 'nightly-.*' matched job: 'nightly-etl'", it.Why())

	view.SetBusy()
	v = d.Decide(context.Background(), it)
	assert.Equal(t, types.VerdictProceed, v.Kind)
	assert.Empty(t, it.Why())
}

func TestDecide_MissingTargetFailsClosed(t *testing.T) {
	d, _, _ := setup(map[string]condition.Chain{
		"deploy": condition.NewChain(condition.NewBuilding("ghost")),
	})
	it := item("deploy")

	v := d.Decide(context.Background(), it)

	assert.Equal(t, types.VerdictBlock, v.Kind)
	assert.Equal(t, "Job 'ghost' not found: does not exist", it.Why())
}

func TestDecide_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	d, _, _ := setup(map[string]condition.Chain{
		"blocked": condition.NewChain(&testutil.ScriptedCondition{Cause: "no"}),
	})
	d.SetMeterProvider(mp)

	d.Decide(context.Background(), item("blocked"))
	d.Decide(context.Background(), item("blocked"))
	d.Decide(context.Background(), item("free"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	var sawHistogram bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name != "queuegate.decisions" {
					continue
				}
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value("verdict")
					counts[v.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				if m.Name == "queuegate.decision.duration" {
					sawHistogram = true
				}
			}
		}
	}
	assert.Equal(t, int64(2), counts[string(types.VerdictBlock)])
	assert.Equal(t, int64(1), counts[string(types.VerdictProceed)])
	assert.True(t, sawHistogram)
}

package lambda

import (
	"context"
	"fmt"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/engine"
	"github.com/dwsmith1983/queuegate/internal/provider/memory"
	"github.com/dwsmith1983/queuegate/internal/recorder"
	"github.com/dwsmith1983/queuegate/internal/watcher"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// HandleAdmission rebuilds the host from the request snapshot and decides
// every waiting item. Decisions are flushed to the sink before returning.
func HandleAdmission(ctx context.Context, d *Deps, req AdmissionRequest) (AdmissionResponse, error) {
	jobs := req.Jobs
	if len(jobs) == 0 {
		jobs = d.Jobs
	}

	host := memory.New(condition.DefaultRegistry(), d.Logger)
	for _, j := range jobs {
		if err := host.RegisterJob(j); err != nil {
			return AdmissionResponse{}, fmt.Errorf("registering job: %w", err)
		}
	}
	if err := host.Seed(req.State); err != nil {
		return AdmissionResponse{}, err
	}

	rec := recorder.New(d.Sink, d.Recorder, d.Logger)
	rec.Start(ctx)

	disp := engine.New(host, host)
	disp.SetLogger(d.Logger)
	disp.SetRecorder(rec)

	var resp AdmissionResponse
	if req.Pass {
		logged := &verdictLog{inner: disp}
		res := watcher.New(host, logged, d.AlertFn, d.Logger, d.Watcher).Pass(ctx)

		waiting := make(map[int64]bool)
		for _, it := range host.Waiting() {
			waiting[it.ID] = true
		}
		for _, e := range logged.entries {
			v := e.verdict
			// Proceed items still waiting were held by the default policy.
			if waiting[e.item.ID] && !v.Blocked() {
				v = types.Block(e.item.Cause())
			}
			resp.Verdicts = append(resp.Verdicts, itemVerdict(e.item, v))
		}
		for _, s := range res.Started {
			resp.Started = append(resp.Started, StartedBuild{
				ItemID:  s.Item.ID,
				JobName: s.Item.JobName,
				Node:    s.Node,
				Run:     s.Run.Number,
			})
		}
	} else {
		for _, it := range host.Waiting() {
			resp.Verdicts = append(resp.Verdicts, itemVerdict(it, disp.Decide(ctx, it)))
		}
	}

	rec.Stop(ctx)
	resp.Recorded = rec.Written()

	d.Logger.Info("admission evaluated",
		"items", len(resp.Verdicts),
		"started", len(resp.Started),
		"recorded", resp.Recorded,
		"dropped", rec.Dropped(),
	)
	return resp, nil
}

func itemVerdict(it *types.WorkItem, v types.Verdict) ItemVerdict {
	return ItemVerdict{
		ItemID:  it.ID,
		JobName: it.JobName,
		Verdict: v.Kind,
		Reason:  v.Reason(),
	}
}

type decided struct {
	item    *types.WorkItem
	verdict types.Verdict
}

// verdictLog remembers every verdict a pass asks for, in order.
type verdictLog struct {
	inner   watcher.Decider
	entries []decided
}

func (l *verdictLog) Decide(ctx context.Context, item *types.WorkItem) types.Verdict {
	v := l.inner.Decide(ctx, item)
	l.entries = append(l.entries, decided{item: item, verdict: v})
	return v
}

// Package watcher runs scheduling passes over the host queue: every waiting
// item is put through admission and admitted items are handed to executors.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/queuegate/internal/metrics"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/provider/memory"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

const defaultInterval = 5 * time.Second

// Decider makes the admission decision for one item.
type Decider interface {
	Decide(ctx context.Context, item *types.WorkItem) types.Verdict
}

// Host is the queue and executor model a pass drives.
type Host interface {
	provider.Catalog
	Waiting() []*types.WorkItem
	Promote(id int64) error
	StartBuildable() []memory.Started
	AllowsConcurrent(jobName string) bool
}

// PassResult summarizes one scheduling pass.
type PassResult struct {
	Admitted int
	Blocked  int
	Started  []memory.Started
}

// Watcher periodically runs scheduling passes.
type Watcher struct {
	host       Host
	decider    Decider
	alertFn    func(context.Context, types.Alert)
	logger     *slog.Logger
	interval   time.Duration
	stuckAfter time.Duration
	now        func() time.Time

	// alerted holds the IDs of items already reported as stuck.
	alerted map[int64]struct{}

	passMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Watcher. alertFn may be nil.
func New(host Host, decider Decider, alertFn func(context.Context, types.Alert), logger *slog.Logger, cfg types.WatcherConfig) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil || interval <= 0 {
		interval = defaultInterval
	}
	var stuckAfter time.Duration
	if cfg.StuckAfter != "" {
		if d, err := time.ParseDuration(cfg.StuckAfter); err == nil && d > 0 {
			stuckAfter = d
		}
	}
	return &Watcher{
		host:       host,
		decider:    decider,
		alertFn:    alertFn,
		logger:     logger,
		interval:   interval,
		stuckAfter: stuckAfter,
		now:        time.Now,
		alerted:    make(map[int64]struct{}),
	}
}

// Start begins the watcher polling loop.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("watcher started", "interval", w.interval)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		// Run immediately on start
		w.Pass(ctx)

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("watcher stopping")
				return
			case <-ticker.C:
				w.Pass(ctx)
			}
		}
	}()
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watcher stopped")
	case <-ctx.Done():
		w.logger.Warn("watcher stop timed out")
	}
}

// Pass runs one scheduling pass. Items are decided in queue order and an
// item admitted earlier in the pass is visible to later items' conditions.
func (w *Watcher) Pass(ctx context.Context) PassResult {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	var res PassResult
	waiting := w.host.Waiting()
	live := make(map[int64]struct{}, len(waiting))

	for _, item := range waiting {
		if ctx.Err() != nil {
			return res
		}
		live[item.ID] = struct{}{}

		if !w.admit(ctx, item) {
			res.Blocked++
			w.checkStuck(ctx, item)
			continue
		}
		if err := w.host.Promote(item.ID); err != nil {
			w.logger.Warn("failed to promote item", "job", item.JobName, "item", item.ID, "error", err)
			continue
		}
		res.Admitted++
	}

	for id := range w.alerted {
		if _, ok := live[id]; !ok {
			delete(w.alerted, id)
		}
	}

	res.Started = w.host.StartBuildable()
	metrics.PassesTotal.Add(1)
	metrics.ItemsAdmitted.Add(int64(res.Admitted))
	metrics.ItemsBlocked.Add(int64(res.Blocked))
	metrics.BuildsStarted.Add(int64(len(res.Started)))
	for _, s := range res.Started {
		w.logger.Info("build started", "job", s.Item.JobName, "item", s.Item.ID, "run", s.Run.Number, "node", s.Node)
	}
	return res
}

// admit applies the admission verdict and then, unless the item was force
// unblocked, the host's default policy.
func (w *Watcher) admit(ctx context.Context, item *types.WorkItem) bool {
	v := w.decider.Decide(ctx, item)
	switch v.Kind {
	case types.VerdictBlock:
		return false
	case types.VerdictForceUnblock:
		return true
	}

	if cause := w.defaultPolicy(item); cause != nil {
		item.SetCause(cause)
		return false
	}
	return true
}

// defaultPolicy keeps a non-concurrent job queued while its last run is in
// progress.
func (w *Watcher) defaultPolicy(item *types.WorkItem) types.CauseOfBlockage {
	if w.host.AllowsConcurrent(item.JobName) {
		return nil
	}
	job, ok := w.host.Lookup(item.JobName)
	if !ok {
		return nil
	}
	last, ok := job.LastRun()
	if !ok || !last.Building {
		return nil
	}
	n := last.Number
	return types.CauseFunc(func() string {
		return fmt.Sprintf("Build #%d is already in progress", n)
	})
}

func (w *Watcher) checkStuck(ctx context.Context, item *types.WorkItem) {
	if w.stuckAfter <= 0 || w.alertFn == nil {
		return
	}
	if _, done := w.alerted[item.ID]; done {
		return
	}
	waited := w.now().Sub(item.EnqueuedAt)
	if waited < w.stuckAfter {
		return
	}
	w.alerted[item.ID] = struct{}{}
	metrics.ItemsStuck.Add(1)
	why := item.Why()
	w.alertFn(ctx, types.Alert{
		Level:     types.AlertLevelWarning,
		JobName:   item.JobName,
		ItemID:    item.ID,
		Message:   fmt.Sprintf("queue item %d blocked for %s: %s", item.ID, waited.Truncate(time.Second), why),
		Cause:     why,
		Timestamp: w.now(),
	})
}

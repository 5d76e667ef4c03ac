package memory

import (
	"fmt"

	"github.com/dwsmith1983/queuegate/internal/resolver"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Enqueue adds a waiting item for a job. Waiting items have not passed
// admission yet.
func (h *Host) Enqueue(jobName string) (*types.WorkItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	j, err := h.buildableJob(jobName)
	if err != nil {
		return nil, err
	}
	h.nextID++
	item := &types.WorkItem{
		ID:          h.nextID,
		JobName:     jobName,
		Scope:       resolver.Parent(jobName),
		RootJobName: j.root,
		EnqueuedAt:  h.now(),
	}
	h.waiting = append(h.waiting, item)
	return item, nil
}

// Waiting returns the items still waiting for admission, in queue order.
func (h *Host) Waiting() []*types.WorkItem {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*types.WorkItem(nil), h.waiting...)
}

// Buildable returns the admitted items waiting for an executor, in queue order.
func (h *Host) Buildable() []*types.WorkItem {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*types.WorkItem(nil), h.buildable...)
}

// Promote moves a waiting item to the buildable list.
func (h *Host) Promote(id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, it := range h.waiting {
		if it.ID == id {
			h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
			h.buildable = append(h.buildable, it)
			return nil
		}
	}
	return fmt.Errorf("item %d: %w", id, ErrNoSuchItem)
}

// Cancel removes an item from the queue, waiting or buildable.
func (h *Host) Cancel(id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if i := indexOf(h.waiting, id); i >= 0 {
		h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
		return nil
	}
	if i := indexOf(h.buildable, id); i >= 0 {
		h.buildable = append(h.buildable[:i], h.buildable[i+1:]...)
		return nil
	}
	return fmt.Errorf("item %d: %w", id, ErrNoSuchItem)
}

// Started describes a buildable item handed to an executor.
type Started struct {
	Item *types.WorkItem
	Node string
	Run  types.Run
}

// StartBuildable hands buildable items to free executors in queue order and
// starts a run for each. Matrix parents run on a one-off executor of the
// first node and never wait for a regular slot. Items that find no free
// executor stay buildable, as do items of a non-concurrent job whose last
// run is still building.
func (h *Host) StartBuildable() []Started {
	h.mu.Lock()
	defer h.mu.Unlock()

	var started []Started
	remaining := h.buildable[:0:0]
	for _, it := range h.buildable {
		j, ok := h.jobs[it.JobName]
		if !ok {
			h.logger.Warn("dropping queue item for unknown job", "job", it.JobName, "item", it.ID)
			continue
		}
		if !j.cfg.Concurrent && isBuilding(j) {
			remaining = append(remaining, it)
			continue
		}
		nodeName, ok := h.assign(it.JobName, j.cfg.Kind == types.KindMatrix)
		if !ok {
			remaining = append(remaining, it)
			continue
		}
		run := h.startRun(j)
		started = append(started, Started{Item: it, Node: nodeName, Run: run})
	}
	h.buildable = remaining
	return started
}

func (h *Host) assign(jobName string, oneOff bool) (string, bool) {
	if oneOff {
		if len(h.nodes) == 0 {
			return "", false
		}
		n := h.nodes[0]
		n.oneOff = append(n.oneOff, jobName)
		return n.name, true
	}
	for _, n := range h.nodes {
		for i, busy := range n.executors {
			if busy == "" {
				n.executors[i] = jobName
				return n.name, true
			}
		}
	}
	return "", false
}

func (h *Host) startRun(j *job) types.Run {
	number := 1
	if n := len(j.runs); n > 0 {
		number = j.runs[n-1].Number + 1
	}
	run := types.Run{Number: number, Building: true, StartedAt: h.now()}
	j.runs = append(j.runs, run)
	return run
}

// freeSlots releases one slot running jobName. Called with h.mu held.
func (h *Host) freeSlots(jobName string) {
	for _, n := range h.nodes {
		for i, busy := range n.executors {
			if busy == jobName {
				n.executors[i] = ""
				return
			}
		}
		for i, busy := range n.oneOff {
			if busy == jobName {
				n.oneOff = append(n.oneOff[:i], n.oneOff[i+1:]...)
				return
			}
		}
	}
}

func isBuilding(j *job) bool {
	n := len(j.runs)
	return n > 0 && j.runs[n-1].Building
}

func indexOf(items []*types.WorkItem, id int64) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

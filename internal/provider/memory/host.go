// Package memory implements an in-memory host scheduler model: the job tree,
// run history, the queue and the executors. It serves as the live
// SchedulerView for admission decisions and as their chain source.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dwsmith1983/queuegate/internal/condition"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/resolver"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ provider.SchedulerView = (*Host)(nil)
	_ provider.Catalog       = (*Host)(nil)
)

// Errors returned by Host mutations.
var (
	ErrJobExists    = errors.New("job already registered")
	ErrNotBuildable = errors.New("job is not buildable")
	ErrNoSuchItem   = errors.New("no such queue item")
	ErrNoSuchRun    = errors.New("no such run")
)

type job struct {
	cfg   types.JobConfig
	root  string // parent matrix for cells, otherwise the job itself
	runs  []types.Run
	chain condition.Chain
}

type node struct {
	name      string
	executors []string // full job name per slot, "" when idle
	oneOff    []string
}

// Host is a concurrency-safe in-memory host scheduler. Every read takes the
// current state; accessors return copies.
type Host struct {
	mu       sync.RWMutex
	registry *condition.Registry
	logger   *slog.Logger
	now      func() time.Time

	jobs      map[string]*job
	waiting   []*types.WorkItem
	buildable []*types.WorkItem
	nodes     []*node
	nextID    int64
}

// New creates an empty host. Condition configs of registered jobs are
// compiled with reg.
func New(reg *condition.Registry, logger *slog.Logger) *Host {
	if reg == nil {
		reg = condition.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		registry: reg,
		logger:   logger,
		now:      time.Now,
		jobs:     make(map[string]*job),
	}
}

// RegisterJob adds a job and compiles its condition chain. Missing parent
// folders are created. A matrix job also gets one cell per axis value,
// named "<matrix>/<axis>".
func (h *Host) RegisterJob(cfg types.JobConfig) error {
	name, ok := resolver.Join("", cfg.Name)
	if !ok {
		return fmt.Errorf("invalid job name %q", cfg.Name)
	}
	cfg.Name = name
	if cfg.Kind == "" {
		cfg.Kind = types.KindFreestyle
	}
	if cfg.Kind == types.KindMatrixCell {
		return fmt.Errorf("job %q: matrix cells are created from the parent's axes", name)
	}

	chain, err := h.registry.Build(cfg.Conditions)
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.jobs[name]; ok && existing.cfg.Kind != types.KindFolder {
		return fmt.Errorf("job %q: %w", name, ErrJobExists)
	} else if ok && cfg.Kind != types.KindFolder {
		return fmt.Errorf("job %q: %w: a folder has that name", name, ErrJobExists)
	}
	var missing []string
	for parent := resolver.Parent(name); parent != ""; parent = resolver.Parent(parent) {
		p, ok := h.jobs[parent]
		if !ok {
			missing = append(missing, parent)
			continue
		}
		if p.cfg.Kind != types.KindFolder && p.cfg.Kind != types.KindMatrix {
			return fmt.Errorf("job %q: parent %q is a %s, not a container", name, parent, p.cfg.Kind)
		}
	}
	for _, parent := range missing {
		h.jobs[parent] = &job{cfg: types.JobConfig{Name: parent, Kind: types.KindFolder}, root: parent}
	}

	h.jobs[name] = &job{cfg: cfg, root: name, chain: chain}
	if cfg.Kind == types.KindMatrix {
		for _, axis := range cfg.Axes {
			cell := name + "/" + axis
			h.jobs[cell] = &job{
				cfg:  types.JobConfig{Name: cell, Kind: types.KindMatrixCell, Concurrent: cfg.Concurrent},
				root: name,
			}
		}
	}
	h.logger.Debug("job registered", "job", name, "kind", cfg.Kind, "conditions", chain.Len())
	return nil
}

// Jobs returns the full names of every registered entity, sorted.
func (h *Host) Jobs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// JobConfig returns the configuration a job was registered with.
func (h *Host) JobConfig(name string) (types.JobConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	j, ok := h.jobs[name]
	if !ok {
		return types.JobConfig{}, false
	}
	return j.cfg, true
}

// ConditionChain returns the chain attached to a job. Matrix cells without
// a chain of their own use their parent's.
func (h *Host) ConditionChain(jobName string) (condition.Chain, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	j, ok := h.jobs[jobName]
	if !ok {
		return condition.Chain{}, false, nil
	}
	if j.chain.Len() == 0 && j.root != jobName {
		if r, ok := h.jobs[j.root]; ok {
			return r.chain, r.chain.Len() > 0, nil
		}
	}
	return j.chain, j.chain.Len() > 0, nil
}

// AddRun appends a run to a job's history. Number 0 assigns the next number.
func (h *Host) AddRun(jobName string, run types.Run) (types.Run, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	j, err := h.buildableJob(jobName)
	if err != nil {
		return types.Run{}, err
	}
	if run.Number == 0 {
		run.Number = 1
		if n := len(j.runs); n > 0 {
			run.Number = j.runs[n-1].Number + 1
		}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = h.now()
	}
	j.runs = append(j.runs, run)
	return run, nil
}

// CompleteRun finishes a building run with result.
func (h *Host) CompleteRun(jobName string, number int, result types.Result) error {
	if !result.Valid() {
		return fmt.Errorf("invalid result %q", result)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	j, err := h.buildableJob(jobName)
	if err != nil {
		return err
	}
	for i := range j.runs {
		r := &j.runs[i]
		if r.Number != number {
			continue
		}
		if !r.Building {
			return fmt.Errorf("%s #%d already completed", jobName, number)
		}
		now := h.now()
		r.Building = false
		r.Result = result
		r.CompletedAt = &now
		h.freeSlots(jobName)
		return nil
	}
	return fmt.Errorf("%s #%d: %w", jobName, number, ErrNoSuchRun)
}

// Runs returns a job's run history, oldest first.
func (h *Host) Runs(jobName string) []types.Run {
	h.mu.RLock()
	defer h.mu.RUnlock()

	j, ok := h.jobs[jobName]
	if !ok {
		return nil
	}
	return append([]types.Run(nil), j.runs...)
}

// AllowsConcurrent reports whether a job may run while a previous run is
// still in progress.
func (h *Host) AllowsConcurrent(jobName string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	j, ok := h.jobs[jobName]
	return ok && j.cfg.Concurrent
}

// AddNode adds a worker node with the given number of regular executors.
func (h *Host) AddNode(name string, executors int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = append(h.nodes, &node{name: name, executors: make([]string, executors)})
}

// Seed loads a host snapshot: run histories, queue entries and what each
// node is executing. Jobs must already be registered.
func (h *Host) Seed(state types.HostState) error {
	names := make([]string, 0, len(state.Runs))
	for name := range state.Runs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, run := range state.Runs[name] {
			if _, err := h.AddRun(name, run); err != nil {
				return fmt.Errorf("seeding runs: %w", err)
			}
		}
	}

	for _, q := range state.Queue {
		item, err := h.Enqueue(q.Job)
		if err != nil {
			return fmt.Errorf("seeding queue: %w", err)
		}
		if !q.EnqueuedAt.IsZero() {
			h.mu.Lock()
			item.EnqueuedAt = q.EnqueuedAt
			h.mu.Unlock()
		}
		if q.Buildable {
			if err := h.Promote(item.ID); err != nil {
				return fmt.Errorf("seeding queue: %w", err)
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ns := range state.Nodes {
		n := &node{name: ns.Name}
		for _, e := range ns.Executors {
			if e.Job != "" {
				if _, ok := h.jobs[e.Job]; !ok {
					return fmt.Errorf("seeding node %q: job %q: %w", ns.Name, e.Job, provider.ErrNotFound)
				}
			}
			n.executors = append(n.executors, e.Job)
		}
		for _, e := range ns.OneOff {
			if _, ok := h.jobs[e.Job]; !ok {
				return fmt.Errorf("seeding node %q: job %q: %w", ns.Name, e.Job, provider.ErrNotFound)
			}
			n.oneOff = append(n.oneOff, e.Job)
		}
		h.nodes = append(h.nodes, n)
	}
	return nil
}

// Lookup implements provider.Catalog.
func (h *Host) Lookup(fullName string) (provider.Job, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	j, ok := h.jobs[fullName]
	if !ok {
		return nil, false
	}
	return &jobRef{host: h, name: fullName, kind: j.cfg.Kind}, true
}

// Resolve implements provider.SchedulerView.
func (h *Host) Resolve(name, scope string) (provider.Job, error) {
	return resolver.Resolve(h, name, scope)
}

// BuildableItems implements provider.SchedulerView.
func (h *Host) BuildableItems() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, len(h.buildable))
	for i, it := range h.buildable {
		out[i] = it.JobName
	}
	return out
}

// BusySlots implements provider.SchedulerView. Cells report their matrix.
func (h *Host) BusySlots() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string
	for _, n := range h.nodes {
		for _, name := range n.executors {
			if name != "" {
				out = append(out, h.rootOf(name))
			}
		}
		for _, name := range n.oneOff {
			out = append(out, h.rootOf(name))
		}
	}
	return out
}

func (h *Host) rootOf(name string) string {
	if j, ok := h.jobs[name]; ok {
		return j.root
	}
	return name
}

func (h *Host) buildableJob(name string) (*job, error) {
	j, ok := h.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", name, provider.ErrNotFound)
	}
	if !j.cfg.Kind.Buildable() {
		return nil, fmt.Errorf("job %q (%s): %w", name, j.cfg.Kind, ErrNotBuildable)
	}
	return j, nil
}

// jobRef is a live handle: every call reads the host's current state.
type jobRef struct {
	host *Host
	name string
	kind types.ItemKind
}

func (r *jobRef) FullName() string     { return r.name }
func (r *jobRef) Kind() types.ItemKind { return r.kind }
func (r *jobRef) Buildable() bool      { return r.kind.Buildable() }

func (r *jobRef) LastRun() (types.Run, bool) {
	r.host.mu.RLock()
	defer r.host.mu.RUnlock()

	j, ok := r.host.jobs[r.name]
	if !ok || len(j.runs) == 0 {
		return types.Run{}, false
	}
	return j.runs[len(j.runs)-1], true
}

func (r *jobRef) LastCompletedRun() (types.Run, bool) {
	r.host.mu.RLock()
	defer r.host.mu.RUnlock()

	j, ok := r.host.jobs[r.name]
	if !ok {
		return types.Run{}, false
	}
	for i := len(j.runs) - 1; i >= 0; i-- {
		if !j.runs[i].Building {
			return j.runs[i], true
		}
	}
	return types.Run{}, false
}

// Package provider defines the interfaces admission control uses to read the
// host scheduler's live state and to persist its decision audit trail.
package provider

import (
	"context"
	"errors"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

// ErrNotFound is returned when a job reference resolves to nothing.
var ErrNotFound = errors.New("not found")

// Job is a live handle to a job in the host's hierarchy.
type Job interface {
	FullName() string
	Kind() types.ItemKind
	// Buildable reports whether the entity produces runs at all.
	Buildable() bool
	// LastRun returns the most recent run, finished or not.
	LastRun() (types.Run, bool)
	// LastCompletedRun returns the most recent finished run.
	LastCompletedRun() (types.Run, bool)
}

// Catalog looks entities up by canonical full name ("folder/job").
type Catalog interface {
	Lookup(fullName string) (Job, bool)
}

// SchedulerView is the read-only capability conditions evaluate against.
// Every call reads current state; nothing is shared across calls.
type SchedulerView interface {
	// Resolve finds a job by reference relative to scope, the full name of
	// the referencing item's container.
	Resolve(name, scope string) (Job, error)
	// BuildableItems lists the full names of queued items ready to run, in
	// queue order.
	BuildableItems() []string
	// BusySlots lists, for every busy execution slot, the full name of the
	// root job being run. Nodes are visited in order; a node's regular
	// executors come before its one-off executors.
	BusySlots() []string
}

// DecisionSink stores the admission decision audit trail.
type DecisionSink interface {
	AppendDecision(ctx context.Context, d types.Decision) error
	// ListDecisions returns up to limit recent decisions for a job,
	// oldest first.
	ListDecisions(ctx context.Context, jobName string, limit int) ([]types.Decision, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

package memory

import (
	"context"
	"sync"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

var _ provider.DecisionSink = (*Sink)(nil)

const defaultSinkCap = 1000

// Sink keeps the most recent decisions per job in memory.
type Sink struct {
	mu        sync.RWMutex
	cap       int
	decisions map[string][]types.Decision
}

// NewSink creates a sink holding at most perJob decisions per job. A
// non-positive perJob selects the default.
func NewSink(perJob int) *Sink {
	if perJob <= 0 {
		perJob = defaultSinkCap
	}
	return &Sink{cap: perJob, decisions: make(map[string][]types.Decision)}
}

// AppendDecision implements provider.DecisionSink.
func (s *Sink) AppendDecision(_ context.Context, d types.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.decisions[d.JobName], d)
	if len(list) > s.cap {
		list = append([]types.Decision(nil), list[len(list)-s.cap:]...)
	}
	s.decisions[d.JobName] = list
	return nil
}

// ListDecisions implements provider.DecisionSink.
func (s *Sink) ListDecisions(_ context.Context, jobName string, limit int) ([]types.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.decisions[jobName]
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]types.Decision(nil), list...), nil
}

func (s *Sink) Start(context.Context) error { return nil }
func (s *Sink) Stop(context.Context) error  { return nil }
func (s *Sink) Ping(context.Context) error  { return nil }

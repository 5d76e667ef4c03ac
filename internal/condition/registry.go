package condition

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

// ErrUnknownType is returned when no factory is registered for a type tag.
var ErrUnknownType = errors.New("unknown condition type")

// Factory builds a condition from its persisted configuration. It returns an
// error only for configurations that can never be evaluated.
type Factory func(cfg types.ConditionConfig) (Condition, error)

// Registry maps condition type tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[types.ConditionType]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[types.ConditionType]Factory)}
}

// DefaultRegistry returns a registry holding the built-in conditions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(types.ConditionBuilding, func(cfg types.ConditionConfig) (Condition, error) {
		return NewBuilding(cfg.Project), nil
	})
	r.Register(types.ConditionResult, func(cfg types.ConditionConfig) (Condition, error) {
		threshold, err := types.ParseThreshold(cfg.Result)
		if err != nil {
			return nil, err
		}
		return NewResult(cfg.Project, threshold), nil
	})
	r.Register(types.ConditionRegex, func(cfg types.ConditionConfig) (Condition, error) {
		return NewRegex(cfg.Patterns)
	})
	return r
}

// Register adds or replaces the factory for a type tag.
func (r *Registry) Register(t types.ConditionType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// Get returns the factory for a type tag.
func (r *Registry) Get(t types.ConditionType) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return f, nil
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []types.ConditionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ConditionType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build compiles configs into a chain, preserving order.
func (r *Registry) Build(configs []types.ConditionConfig) (Chain, error) {
	conds := make([]Condition, 0, len(configs))
	for i, cfg := range configs {
		f, err := r.Get(cfg.Type)
		if err != nil {
			return Chain{}, fmt.Errorf("condition %d: %w", i, err)
		}
		c, err := f(cfg)
		if err != nil {
			return Chain{}, fmt.Errorf("condition %d (%s): %w", i, cfg.Type, err)
		}
		conds = append(conds, c)
	}
	return NewChain(conds...), nil
}

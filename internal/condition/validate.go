package condition

import (
	"errors"
	"fmt"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Problem is a configuration finding for one condition of a job.
type Problem struct {
	Index int
	Type  types.ConditionType
	// Fatal problems prevent the chain from being built at all. Non-fatal
	// ones are saved but make the condition block at evaluation time.
	Fatal   bool
	Message string
}

func (p Problem) String() string {
	sev := "warning"
	if p.Fatal {
		sev = "error"
	}
	return fmt.Sprintf("%s: condition %d (%s): %s", sev, p.Index, p.Type, p.Message)
}

// Validate checks a job's condition configs the way an operator form would:
// unknown types, invalid thresholds and unparsable patterns are fatal. A
// missing threshold or a missing or unresolvable target is a warning. view may be nil,
// in which case targets are not looked up.
func Validate(reg *Registry, view provider.SchedulerView, scope string, configs []types.ConditionConfig) []Problem {
	var problems []Problem
	for i, cfg := range configs {
		f, err := reg.Get(cfg.Type)
		if err != nil {
			problems = append(problems, Problem{Index: i, Type: cfg.Type, Fatal: true, Message: err.Error()})
			continue
		}
		if _, err := f(cfg); err != nil {
			msg := err.Error()
			if cfg.Type == types.ConditionRegex {
				msg = "Can't parse patterns: " + msg
			}
			problems = append(problems, Problem{Index: i, Type: cfg.Type, Fatal: true, Message: msg})
			continue
		}

		if cfg.Type == types.ConditionResult && cfg.Result == "" {
			problems = append(problems, Problem{Index: i, Type: cfg.Type,
				Message: fmt.Sprintf("Result threshold not specified, using %s", types.ResultUnstable)})
		}

		switch cfg.Type {
		case types.ConditionBuilding, types.ConditionResult:
			if cfg.Project == "" {
				problems = append(problems, Problem{Index: i, Type: cfg.Type, Message: "Job must be specified"})
				continue
			}
			if view == nil {
				continue
			}
			if _, err := view.Resolve(cfg.Project, scope); err != nil {
				msg := err.Error()
				if errors.Is(err, provider.ErrNotFound) {
					msg = fmt.Sprintf("Job: '%s', parent: '%s' not found", cfg.Project, scopeLabel(scope))
				}
				problems = append(problems, Problem{Index: i, Type: cfg.Type, Message: msg})
			}
		}
	}
	return problems
}

// HasFatal reports whether any problem prevents the chain from building.
func HasFatal(problems []Problem) bool {
	for _, p := range problems {
		if p.Fatal {
			return true
		}
	}
	return false
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "/"
	}
	return scope
}

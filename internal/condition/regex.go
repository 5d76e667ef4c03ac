package condition

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Regex blocks while any queued-and-buildable or currently executing job
// name fully matches one of its patterns.
type Regex struct {
	neverUnblocks
	source   string
	patterns []pattern
}

type pattern struct {
	text string
	re   *regexp.Regexp
}

// NewRegex compiles source, one pattern per line. Blank lines and lines
// starting with '#' are skipped. An invalid pattern is rejected here so a
// Regex value is always fully compiled.
func NewRegex(source string) (*Regex, error) {
	patterns, err := parsePatterns(source)
	if err != nil {
		return nil, err
	}
	return &Regex{source: source, patterns: patterns}, nil
}

// ParsePatterns compiles a pattern source as NewRegex does.
func ParsePatterns(source string) ([]*regexp.Regexp, error) {
	patterns, err := parsePatterns(source)
	if err != nil {
		return nil, err
	}
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = p.re
	}
	return out, nil
}

func parsePatterns(source string) ([]pattern, error) {
	var patterns []pattern
	for i, line := range strings.Split(source, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// The line must compile on its own before it is anchored, otherwise
		// a stray ")" can close the group and escape the anchors.
		if _, err := regexp.Compile(line); err != nil {
			return nil, fmt.Errorf("line %d: can't parse pattern %q: %w", i+1, line, err)
		}
		// Patterns must match the whole name, not a substring.
		re, err := regexp.Compile(`^(?:` + line + `)$`)
		if err != nil {
			return nil, fmt.Errorf("line %d: can't parse pattern %q: %w", i+1, line, err)
		}
		patterns = append(patterns, pattern{text: line, re: re})
	}
	return patterns, nil
}

// Source returns the configured pattern text.
func (r *Regex) Source() string { return r.source }

// Patterns returns the effective patterns in evaluation order.
func (r *Regex) Patterns() []string {
	out := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		out[i] = p.text
	}
	return out
}

// Type implements Condition.
func (r *Regex) Type() types.ConditionType { return types.ConditionRegex }

// IsBlocked implements Condition. Buildable queue entries are scanned before
// busy executors; the first (name, pattern) match wins.
func (r *Regex) IsBlocked(view provider.SchedulerView, item *types.WorkItem) types.CauseOfBlockage {
	slog.Debug("checking regex blockage", "job", item.RootName(), "item", item.ID)

	if cause := r.match(view.BuildableItems()); cause != nil {
		return cause
	}
	return r.match(view.BusySlots())
}

func (r *Regex) match(names []string) types.CauseOfBlockage {
	for _, name := range names {
		for _, p := range r.patterns {
			if p.re.MatchString(name) {
				text, matched := p.text, name
				return types.CauseFunc(func() string {
					return fmt.Sprintf("pattern '%s' matched job: '%s'", text, matched)
				})
			}
		}
	}
	return nil
}

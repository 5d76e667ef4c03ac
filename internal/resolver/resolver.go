// Package resolver resolves job references against the host's container
// hierarchy.
//
// Full names are slash separated paths from the root ("team/app/build").
// A reference is resolved the way the host addresses jobs:
//
//   - "/team/app" is absolute from the root;
//   - "app", "../lib" or "./sub/job" are relative to the referencing item's
//     container, with "." and ".." segments normalized;
//   - a relative reference that misses and does not start with "." is
//     retried from the root, so top-level jobs can be named bare from any
//     folder.
package resolver

import (
	"fmt"
	"strings"

	"github.com/dwsmith1983/queuegate/internal/provider"
)

// Resolve finds the job named by ref relative to scope. It returns an error
// wrapping provider.ErrNotFound when nothing matches.
func Resolve(c provider.Catalog, ref, scope string) (provider.Job, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty job reference: %w", provider.ErrNotFound)
	}

	if strings.HasPrefix(ref, "/") {
		if full, ok := Join("", ref); ok {
			if job, found := c.Lookup(full); found {
				return job, nil
			}
		}
		return nil, fmt.Errorf("job %q: %w", ref, provider.ErrNotFound)
	}

	if full, ok := Join(scope, ref); ok {
		if job, found := c.Lookup(full); found {
			return job, nil
		}
	}

	if scope != "" && !strings.HasPrefix(ref, ".") {
		if full, ok := Join("", ref); ok {
			if job, found := c.Lookup(full); found {
				return job, nil
			}
		}
	}

	return nil, fmt.Errorf("job %q in %q: %w", ref, scopeName(scope), provider.ErrNotFound)
}

// Join applies ref to base and returns the normalized full name. It reports
// false when ".." climbs above the root or the result is empty.
func Join(base, ref string) (string, bool) {
	var segs []string
	if !strings.HasPrefix(ref, "/") {
		segs = appendSegments(segs, base)
	}
	for _, s := range strings.Split(ref, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return "", false
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return "", false
	}
	return strings.Join(segs, "/"), true
}

// Parent returns the container full name of a full name, "" for top level.
func Parent(fullName string) string {
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		return fullName[:i]
	}
	return ""
}

func appendSegments(segs []string, path string) []string {
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func scopeName(scope string) string {
	if scope == "" {
		return "/"
	}
	return scope
}

package testutil

import (
	"testing"
	"time"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForDecisions polls until the sink holds at least n decisions for job.
func WaitForDecisions(t *testing.T, sink *CaptureSink, job string, n int, timeout time.Duration) []types.Decision {
	t.Helper()
	var got []types.Decision
	WaitFor(t, timeout, func() bool {
		got = sink.DecisionsFor(job)
		return len(got) >= n
	}, "decisions recorded for "+job)
	return got
}

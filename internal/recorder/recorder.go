// Package recorder writes admission decisions to a DecisionSink in the
// background so the decision path never waits on storage.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Recorder defaults.
const (
	defaultBufferSize    = 1024
	defaultWriteTimeout  = 5 * time.Second
	defaultFailThreshold = 5
	defaultCooldown      = 30 * time.Second
)

// Options tunes a Recorder. Zero values select defaults.
type Options struct {
	BufferSize    int
	BlockedOnly   bool
	WriteTimeout  time.Duration
	FailThreshold uint32
	Cooldown      time.Duration
}

// OptionsFromConfig converts the YAML recorder section. A nil config
// yields defaults.
func OptionsFromConfig(cfg *types.RecorderConfig) (Options, error) {
	var opts Options
	if cfg == nil {
		return opts, nil
	}
	opts.BufferSize = cfg.BufferSize
	opts.BlockedOnly = cfg.BlockedOnly
	if cfg.FailThreshold > 0 {
		opts.FailThreshold = uint32(cfg.FailThreshold)
	}
	if cfg.WriteTimeout != "" {
		d, err := time.ParseDuration(cfg.WriteTimeout)
		if err != nil {
			return opts, fmt.Errorf("recorder.writeTimeout: %w", err)
		}
		opts.WriteTimeout = d
	}
	if cfg.Cooldown != "" {
		d, err := time.ParseDuration(cfg.Cooldown)
		if err != nil {
			return opts, fmt.Errorf("recorder.cooldown: %w", err)
		}
		opts.Cooldown = d
	}
	return opts, nil
}

// Recorder buffers decisions and appends them to a sink from a single
// background goroutine. When the buffer is full new decisions are dropped.
// Repeated sink failures open a circuit breaker; while it is open decisions
// are discarded without touching the sink.
type Recorder struct {
	sink         provider.DecisionSink
	ch           chan types.Decision
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
	blockedOnly  bool
	writeTimeout time.Duration

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Recorder writing to sink.
func New(sink provider.DecisionSink, opts Options, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.FailThreshold == 0 {
		opts.FailThreshold = defaultFailThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}

	r := &Recorder{
		sink:         sink,
		ch:           make(chan types.Decision, opts.BufferSize),
		logger:       logger,
		blockedOnly:  opts.BlockedOnly,
		writeTimeout: opts.WriteTimeout,
	}
	threshold := opts.FailThreshold
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "decision-sink",
		Timeout: opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("decision sink breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return r
}

// Record queues d for writing. It never blocks.
func (r *Recorder) Record(d types.Decision) {
	if r.blockedOnly && d.Verdict != types.VerdictBlock {
		return
	}
	select {
	case r.ch <- d:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("decision buffer full, dropping decisions", "job", d.JobName)
		}
	}
}

// Start launches the background writer. Calling Start twice is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop stops the writer after flushing what is already buffered, or when
// ctx expires, whichever comes first.
func (r *Recorder) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out", "pending", len(r.ch))
	}
}

// Dropped returns how many decisions were dropped because the buffer was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Written returns how many decisions reached the sink.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Failed returns how many decisions were lost to sink errors or an open breaker.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// BreakerState reports the sink circuit breaker state.
func (r *Recorder) BreakerState() gobreaker.State { return r.breaker.State() }

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case d := <-r.ch:
			r.write(d)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case d := <-r.ch:
			r.write(d)
		default:
			return
		}
	}
}

func (r *Recorder) write(d types.Decision) {
	d.Render()
	_, err := r.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		defer cancel()
		return nil, r.sink.AppendDecision(ctx, d)
	})
	if err == nil {
		r.written.Add(1)
		return
	}
	r.failed.Add(1)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return
	}
	r.logger.Error("failed to record decision", "job", d.JobName, "item", d.ItemID, "error", err)
}

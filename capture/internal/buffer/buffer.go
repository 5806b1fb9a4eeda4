// Package buffer decouples high-frequency event production from the
// comparatively expensive store write. Events accumulate in memory and flush
// when either a count threshold is reached or a latency bound expires,
// whichever happens first — a burst flushes immediately, a trickle is bounded
// by the timer.
package buffer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/drdom/drdom/capture/event"
)

// State is the buffer lifecycle state, exposed for tests and stats.
type State string

const (
	StateIdle         State = "idle"
	StateAccumulating State = "accumulating"
	// StateDead means a flush hit an unreachable store: the timer is
	// cancelled and further events are dropped. This is the accepted
	// data-loss boundary at session teardown, not a retry condition.
	StateDead State = "dead"
)

// FlushFunc receives a snapshot of buffered events. A non-nil error marks the
// store unreachable and kills the buffer.
type FlushFunc func(ctx context.Context, events []event.Captured) error

// Config controls the flush policy.
type Config struct {
	// Count flushes immediately when this many events accumulate. Default: 5.
	Count int
	// MaxLatency bounds the staleness of a trickle of events. Default: 500ms.
	MaxLatency time.Duration
}

func (c *Config) defaults() {
	if c.Count <= 0 {
		c.Count = 5
	}
	if c.MaxLatency <= 0 {
		c.MaxLatency = 500 * time.Millisecond
	}
}

// Buffer accumulates events and flushes them by count or by latency.
//
// The flush takes a snapshot-and-swap of the slice inside the lock before any
// store I/O, so producers never append to a slice a flush is iterating and no
// event is either duplicated across batches or lost between them.
type Buffer struct {
	mu      sync.Mutex
	cfg     Config
	events  []event.Captured
	timer   *time.Timer
	dead    bool
	dropped uint64

	// flushMu serializes snapshot+delivery. The timer goroutine and a
	// threshold flush in Add would otherwise race: a timer flush stalled
	// in the store write could be overtaken by a later threshold batch,
	// persisting newer events ahead of older ones.
	flushMu sync.Mutex

	flushFn FlushFunc
	logger  *slog.Logger
}

// New creates a Buffer delivering snapshots to flushFn.
func New(cfg Config, flushFn FlushFunc, logger *slog.Logger) *Buffer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		cfg:     cfg,
		events:  make([]event.Captured, 0, cfg.Count),
		flushFn: flushFn,
		logger:  logger,
	}
}

// Add queues an event, preserving arrival order (FIFO). It triggers an
// immediate flush when the count threshold is reached, otherwise arms the
// latency timer if it is not already running. Events added after the buffer
// died are dropped.
func (b *Buffer) Add(ev event.Captured) {
	b.mu.Lock()
	if b.dead {
		b.dropped++
		b.mu.Unlock()
		return
	}

	b.events = append(b.events, ev)

	if len(b.events) >= b.cfg.Count {
		b.mu.Unlock()
		b.flush(context.Background())
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.MaxLatency, b.onTimer)
	}
	b.mu.Unlock()
}

// Flush forces an immediate flush of whatever is buffered. Used at page
// unload and session stop to minimise loss at navigation.
func (b *Buffer) Flush(ctx context.Context) {
	b.flush(ctx)
}

// Stop cancels the latency timer without flushing. The buffer stays usable;
// call Flush first for a graceful drain.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
}

// State reports the current lifecycle state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.dead:
		return StateDead
	case len(b.events) > 0:
		return StateAccumulating
	default:
		return StateIdle
	}
}

// Dropped reports how many events were discarded after the buffer died.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len reports the number of currently buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// swapLocked snapshots and resets the buffer. Caller holds the lock.
func (b *Buffer) swapLocked() []event.Captured {
	snapshot := b.events
	b.events = make([]event.Captured, 0, b.cfg.Count)
	b.stopTimerLocked()
	return snapshot
}

func (b *Buffer) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Buffer) onTimer() {
	b.flush(context.Background())
}

// flush snapshots and delivers under flushMu. Holding flushMu across the
// snapshot means snapshot order equals delivery order: batches reach the
// store FIFO no matter which path (timer, threshold, forced) triggered
// them. A flush that arrives while another holds the lock waits, then
// picks up whatever accumulated meanwhile; an empty snapshot is a no-op.
//
// On delivery failure the batch is abandoned and the buffer dies: no
// retry, no backoff — the store going away means the capture session is
// ending.
func (b *Buffer) flush(ctx context.Context) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.dead {
		b.mu.Unlock()
		return
	}
	snapshot := b.swapLocked()
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	if err := b.flushFn(ctx, snapshot); err != nil {
		b.mu.Lock()
		b.dead = true
		b.dropped += uint64(len(b.events))
		b.events = nil
		b.stopTimerLocked()
		b.mu.Unlock()
		b.logger.Warn("buffer: flush failed, capture stopped",
			"lost", len(snapshot), "error", err)
	}
}

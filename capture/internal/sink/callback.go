package sink

import (
	"context"

	"github.com/drdom/drdom/capture/event"
)

// BatchFunc is called for each batch (in-process, zero serialisation).
type BatchFunc func(ctx context.Context, batch event.Batch) error

// Callback delivers batches via Go function calls. When the store and
// the capture agent live in the same binary, batches arrive as
// in-memory function calls with zero serialisation overhead.
type Callback struct {
	onBatch BatchFunc
}

// NewCallback creates a Callback sink. The handler may be nil.
func NewCallback(onBatch BatchFunc) *Callback {
	return &Callback{onBatch: onBatch}
}

func (c *Callback) Send(ctx context.Context, batch event.Batch) error {
	if c.onBatch != nil {
		return c.onBatch(ctx, batch)
	}
	return nil
}

func (c *Callback) Close() error { return nil }

// Package sink defines output backends for capture batches.
package sink

import (
	"context"

	"github.com/drdom/drdom/capture/event"
)

// Sink is the output interface. Implementations deliver batches to
// different backends (stdout, webhook, page store, in-process callback).
type Sink interface {
	Send(ctx context.Context, batch event.Batch) error
	Close() error
}

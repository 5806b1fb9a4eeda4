package capture

import (
	"context"
	"io"
	"log/slog"

	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/capture/internal/sink"
)

// Sink is the output interface for capture batches.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// BatchFunc is called for each batch.
type BatchFunc = sink.BatchFunc

// NewCallbackSink creates an in-process callback sink. When the store
// and the agent share a binary, batches arrive with zero serialisation.
func NewCallbackSink(onBatch func(ctx context.Context, batch event.Batch) error) Sink {
	return sink.NewCallback(onBatch)
}

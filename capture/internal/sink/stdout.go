package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/drdom/drdom/capture/event"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w, enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, batch event.Batch) error {
	data, err := event.MarshalBatch(&batch)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "batch", Data: data})
}

func (s *Stdout) Close() error { return nil }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

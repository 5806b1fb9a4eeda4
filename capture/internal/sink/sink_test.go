package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/drdom/drdom/capture/event"
)

func testBatch() event.Batch {
	return event.Batch{
		ID:     "b-1",
		Domain: "example.com",
		Seq:    1,
		Events: []event.Captured{
			{ID: "e-1", Kind: event.KindRequest, Phase: event.PhaseComplete},
		},
	}
}

func TestStdoutEncodesEnvelope(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("send: %v", err)
	}

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != "batch" {
		t.Fatalf("type: got %q, want %q", env.Type, "batch")
	}
	batch, err := event.UnmarshalBatch(env.Data)
	if err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if batch.Domain != "example.com" {
		t.Fatalf("domain: got %q, want %q", batch.Domain, "example.com")
	}
}

func TestRouterFanOut(t *testing.T) {
	var a, b atomic.Int32
	r := NewRouter(nil,
		NewCallback(func(context.Context, event.Batch) error { a.Add(1); return nil }),
		NewCallback(func(context.Context, event.Batch) error { b.Add(1); return nil }),
	)
	if err := r.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("deliveries: got a=%d b=%d, want 1 each", a.Load(), b.Load())
	}
}

func TestRouterFailingSinkDoesNotBlockOthers(t *testing.T) {
	var delivered atomic.Int32
	wantErr := errors.New("backend down")
	r := NewRouter(nil,
		NewCallback(func(context.Context, event.Batch) error { return wantErr }),
		NewCallback(func(context.Context, event.Batch) error { delivered.Add(1); return nil }),
	)
	err := r.Send(context.Background(), testBatch())
	if !errors.Is(err, wantErr) {
		t.Fatalf("error: got %v, want %v", err, wantErr)
	}
	if delivered.Load() != 1 {
		t.Fatalf("second sink deliveries: got %d, want 1", delivered.Load())
	}
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var gotDomain atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&env); err == nil {
			if batch, err := event.UnmarshalBatch(env.Data); err == nil {
				gotDomain.Store(batch.Domain)
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(3))
	if err := w.Send(context.Background(), testBatch()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls: got %d, want 2", calls.Load())
	}
	if d, _ := gotDomain.Load().(string); d != "example.com" {
		t.Fatalf("posted domain: got %q, want %q", d, "example.com")
	}
}

func TestWebhookExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(0))
	if err := w.Send(context.Background(), testBatch()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}

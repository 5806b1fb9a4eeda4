package bus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCallLocal(t *testing.T) {
	b := New()
	b.RegisterLocal("echo", func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})

	resp, err := b.Call(context.Background(), "echo", []byte(`{"ping":true}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != `{"ping":true}` {
		t.Fatalf("response: got %q", resp)
	}
}

func TestCallUnknownService(t *testing.T) {
	b := New()
	_, err := b.Call(context.Background(), "nope", nil)
	var notFound *ErrServiceNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("error: got %v, want ErrServiceNotFound", err)
	}
	if notFound.Service != "nope" {
		t.Fatalf("service: got %q, want %q", notFound.Service, "nope")
	}
}

func TestRemoteTakesPriority(t *testing.T) {
	b := New()
	b.RegisterLocal("svc", func(context.Context, []byte) ([]byte, error) {
		return []byte("local"), nil
	})
	b.RegisterRemote("svc", func(context.Context, []byte) ([]byte, error) {
		return []byte("remote"), nil
	})

	resp, err := b.Call(context.Background(), "svc", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != "remote" {
		t.Fatalf("response: got %q, want %q", resp, "remote")
	}
}

func TestUnregister(t *testing.T) {
	b := New()
	b.RegisterLocal("svc", func(context.Context, []byte) ([]byte, error) { return nil, nil })
	b.Unregister("svc")
	if _, err := b.Call(context.Background(), "svc", nil); err == nil {
		t.Fatal("expected error after unregister")
	}
}

func TestHTTPHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"q":1}` {
			t.Errorf("request body: got %q", body)
		}
		w.Write([]byte(`{"a":2}`))
	}))
	defer srv.Close()

	b := New()
	b.RegisterRemote("stats", HTTPHandler(srv.URL, 5*time.Second))

	resp, err := b.Call(context.Background(), "stats", []byte(`{"q":1}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(resp) != `{"a":2}` {
		t.Fatalf("response: got %q", resp)
	}
}

func TestHTTPHandlerBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := HTTPHandler(srv.URL, time.Second)
	if _, err := h(context.Background(), nil); err == nil {
		t.Fatal("expected error for bad status")
	}
}

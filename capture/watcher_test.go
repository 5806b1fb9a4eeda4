package capture

import (
	"context"
	"testing"
	"time"

	"github.com/drdom/drdom/capture/internal/browser"
	"github.com/drdom/drdom/capture/internal/buffer"
	"github.com/drdom/drdom/capture/internal/config"
)

func newDwellSession(w *Watcher, pageID string) *session {
	s := &session{
		pageID:    pageID,
		sessionID: "ses_test",
		tab:       &browser.Tab{Domain: "example.com"},
		startedAt: time.Now(),
	}
	s.buf = buffer.New(buffer.Config{Count: 100, MaxLatency: time.Hour}, w.flushFunc(s), nil)
	w.sessions[pageID] = s
	return s
}

func TestDwellStopsSession(t *testing.T) {
	w := New(&config.Config{}, nil)
	ended := make(chan string, 1)
	w.SetSessionEndHook(func(_ context.Context, domain string) error {
		ended <- domain
		return nil
	})
	s := newDwellSession(w, "shop")

	w.startDwell(context.Background(), s.pageID, 10*time.Millisecond)

	select {
	case domain := <-ended:
		if domain != "example.com" {
			t.Fatalf("ended domain: got %q, want example.com", domain)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dwell did not stop the session")
	}

	w.mu.Lock()
	_, ok := w.sessions[s.pageID]
	w.mu.Unlock()
	if ok {
		t.Fatal("session still registered after dwell")
	}
}

func TestDwellAbandonedOnCancel(t *testing.T) {
	w := New(&config.Config{}, nil)
	s := newDwellSession(w, "shop")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.startDwell(ctx, s.pageID, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	w.mu.Lock()
	_, ok := w.sessions[s.pageID]
	w.mu.Unlock()
	if !ok {
		t.Fatal("cancelled dwell should leave the session running")
	}
}

// Package capture provides a page capture agent that orchestrates Chrome
// as a disposable component. It instruments pages at document-start,
// normalizes the raw records into typed events, tags tracker traffic,
// batches events, and emits batches to sinks.
//
// capture observes, it does not interpret. Consumers (the page store,
// the HTTP API, MCP tools) decide what the captured traffic means.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drdom/drdom/bus"
	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/capture/internal/browser"
	"github.com/drdom/drdom/capture/internal/buffer"
	"github.com/drdom/drdom/capture/internal/config"
	"github.com/drdom/drdom/capture/internal/instrument"
	"github.com/drdom/drdom/capture/internal/normalize"
	"github.com/drdom/drdom/capture/internal/sink"
	"github.com/drdom/drdom/classify"
	"github.com/drdom/drdom/idgen"
)

// SessionEndFunc is called when a page session ends (unload or stop).
// The domain's stored record should be marked no longer live.
type SessionEndFunc func(ctx context.Context, domain string) error

// session is one instrumented page: tab, normalizer, buffer, sequence.
type session struct {
	pageID    string
	sessionID string
	tab       *browser.Tab
	norm      *normalize.Normalizer
	buf       *buffer.Buffer
	seq       atomic.Uint64
	startedAt time.Time
}

// Watcher is the top-level orchestrator. It manages the browser, the
// per-page capture sessions, and the sinks. Create one per agent.
type Watcher struct {
	cfg        *config.Config
	mgr        *browser.Manager
	sinkR      *sink.Router
	sessions   map[string]*session // keyed by page ID
	mu         sync.Mutex
	logger     *slog.Logger
	newBatchID idgen.Generator
	newSession idgen.Generator
	newEventID idgen.Generator
	onEnd      SessionEndFunc
}

// New creates a Watcher from configuration.
func New(cfg *config.Config, logger *slog.Logger, sinks ...sink.Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.Browser.Remote,
		Headful:   cfg.Browser.Headful,
		Logger:    logger,
	})

	return &Watcher{
		cfg:        cfg,
		mgr:        mgr,
		sinkR:      sink.NewRouter(logger, sinks...),
		sessions:   make(map[string]*session),
		logger:     logger,
		newBatchID: idgen.UUIDv7(),
		newSession: idgen.Prefixed("ses", idgen.NanoID(12)),
		newEventID: idgen.TimeRand(6),
	}
}

// SetSessionEndHook installs a callback fired when a session ends.
// Must be called before Start.
func (w *Watcher) SetSessionEndHook(fn SessionEndFunc) {
	w.onEnd = fn
}

// Start launches the browser and begins capturing all configured pages.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("capture: start browser: %w", err)
	}

	for _, page := range w.cfg.Pages {
		if err := w.CapturePage(ctx, page); err != nil {
			w.logger.Error("capture: failed to capture page",
				"url", page.URL, "error", err)
		}
	}
	return nil
}

// CapturePage opens a tab for the page, installs instrumentation before
// navigation, and starts a capture session. A session already running
// for the same page ID is replaced: the page reloaded, and the new
// session's events supersede the old one's in the store.
func (w *Watcher) CapturePage(ctx context.Context, pageCfg config.PageConfig) error {
	tab, err := browser.OpenTab(ctx, w.mgr, pageCfg.URL)
	if err != nil {
		return fmt.Errorf("capture: open tab: %w", err)
	}

	s := &session{
		pageID:    pageCfg.ID,
		sessionID: w.newSession(),
		tab:       tab,
		norm:      normalize.New(tab.Domain),
		startedAt: time.Now(),
	}
	s.buf = buffer.New(buffer.Config{
		Count:      w.cfg.Buffer.Count,
		MaxLatency: w.cfg.Buffer.MaxLatency,
	}, w.flushFunc(s), w.logger)

	_, err = instrument.Install(ctx, instrument.Config{
		Page: tab.Page,
		OnRaw: func(raw normalize.Raw) {
			for _, ev := range s.norm.Normalize(raw) {
				s.buf.Add(ev)
			}
		},
		OnUnload: func() {
			s.buf.Flush(ctx)
			w.endSession(ctx, s)
		},
		Logger: w.logger,
	})
	if err != nil {
		tab.Close()
		return fmt.Errorf("capture: install instrumentation: %w", err)
	}

	w.mu.Lock()
	if old, ok := w.sessions[pageCfg.ID]; ok {
		w.mu.Unlock()
		w.stopSession(ctx, old)
		w.mu.Lock()
	}
	w.sessions[pageCfg.ID] = s
	w.mu.Unlock()

	// Navigation failures are not fatal: hooks are installed and any
	// traffic the page does produce still flows.
	if err := tab.Navigate(ctx, pageCfg.LoadTimeout); err != nil {
		w.logger.Warn("capture: navigation incomplete",
			"url", pageCfg.URL, "error", err)
	}

	// Tracker SDKs leave recognizable cookie and storage names behind
	// even when their network traffic predates the session.
	w.scanStoredState(ctx, s)

	if pageCfg.DwellTime > 0 {
		w.startDwell(ctx, pageCfg.ID, pageCfg.DwellTime)
	}

	w.logger.Info("capture: session started",
		"url", pageCfg.URL, "id", pageCfg.ID,
		"domain", tab.Domain, "session", s.sessionID)
	return nil
}

// startDwell bounds a session's lifetime: once the dwell elapses the
// page is stopped and its record marked ended, same as an explicit
// StopPage. Cancelling ctx abandons the dwell without stopping the
// session; shutdown handles it instead.
func (w *Watcher) startDwell(ctx context.Context, pageID string, d time.Duration) {
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(d):
			if err := w.StopPage(context.Background(), pageID); err != nil {
				// Already stopped by unload or shutdown.
				w.logger.Debug("capture: dwell stop", "id", pageID, "error", err)
			}
		}
	}()
}

// StopPage ends the capture session for a page ID. Buffered events are
// flushed before the tab closes.
func (w *Watcher) StopPage(ctx context.Context, pageID string) error {
	w.mu.Lock()
	s, ok := w.sessions[pageID]
	delete(w.sessions, pageID)
	w.mu.Unlock()

	if !ok {
		return fmt.Errorf("capture: no session for page %q", pageID)
	}
	w.stopSession(ctx, s)
	return nil
}

// Stop gracefully shuts down all sessions, the sinks, and the browser.
func (w *Watcher) Stop(ctx context.Context) {
	w.mu.Lock()
	sessions := w.sessions
	w.sessions = make(map[string]*session)
	w.mu.Unlock()

	for id, s := range sessions {
		w.stopSession(ctx, s)
		w.logger.Info("capture: stopped session", "id", id)
	}

	w.sinkR.Close()
	w.mgr.Close()
}

// flushFunc builds the buffer flush callback for a session. Each flush
// becomes one batch with the session's next sequence number.
func (w *Watcher) flushFunc(s *session) buffer.FlushFunc {
	return func(ctx context.Context, events []event.Captured) error {
		batch := event.Batch{
			ID:        w.newBatchID(),
			Domain:    s.tab.Domain,
			SessionID: s.sessionID,
			Seq:       s.seq.Add(1),
			Events:    events,
			Timestamp: time.Now().UnixMilli(),
		}
		return w.sinkR.Send(ctx, batch)
	}
}

// scanStoredState classifies cookie names and storage keys already
// present on the page, emitting a tracker event per match.
func (w *Watcher) scanStoredState(ctx context.Context, s *session) {
	names, err := s.tab.CookieNames(ctx)
	if err != nil {
		w.logger.Warn("capture: cookie scan failed",
			"domain", s.tab.Domain, "error", err)
	}
	keys, err := s.tab.StorageKeys(ctx)
	if err != nil {
		w.logger.Warn("capture: storage scan failed",
			"domain", s.tab.Domain, "error", err)
	}

	now := time.Now().UnixMilli()
	for _, name := range append(names, keys...) {
		tag := classify.Match(name)
		if tag == nil {
			continue
		}
		s.buf.Add(event.Captured{
			ID:        w.newEventID(),
			Kind:      event.KindTracker,
			Source:    event.SourceStorage,
			WallClock: now,
			Payload:   event.Payload{Key: name},
			Tag:       tag,
		})
	}
}

func (w *Watcher) stopSession(ctx context.Context, s *session) {
	s.buf.Flush(ctx)
	s.buf.Stop()
	w.endSession(ctx, s)
	s.tab.Close()
}

func (w *Watcher) endSession(ctx context.Context, s *session) {
	if w.onEnd == nil {
		return
	}
	if err := w.onEnd(ctx, s.tab.Domain); err != nil {
		w.logger.Warn("capture: session end hook failed",
			"domain", s.tab.Domain, "error", err)
	}
}

// SessionStats is a point-in-time view of one capture session.
type SessionStats struct {
	PageID    string `json:"page_id"`
	Domain    string `json:"domain"`
	SessionID string `json:"session_id"`
	StartedAt int64  `json:"started_at"`
	Batches   uint64 `json:"batches"`
	Buffered  int    `json:"buffered"`
	Dropped   uint64 `json:"dropped"`
	State     string `json:"state"`
}

// Stats reports all live sessions.
func (w *Watcher) Stats() []SessionStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]SessionStats, 0, len(w.sessions))
	for _, s := range w.sessions {
		out = append(out, SessionStats{
			PageID:    s.pageID,
			Domain:    s.tab.Domain,
			SessionID: s.sessionID,
			StartedAt: s.startedAt.UnixMilli(),
			Batches:   s.seq.Load(),
			Buffered:  s.buf.Len(),
			Dropped:   s.buf.Dropped(),
			State:     string(s.buf.State()),
		})
	}
	return out
}

// RegisterBus registers capture services on the bus.
// Services: capture_stats, capture_page.
func (w *Watcher) RegisterBus(b *bus.Bus) {
	b.RegisterLocal("capture_stats", w.handleStats)
	b.RegisterLocal("capture_page", w.handleCapturePage)
}

// handleStats is the bus handler for session statistics.
func (w *Watcher) handleStats(_ context.Context, _ []byte) ([]byte, error) {
	return json.Marshal(map[string]any{"sessions": w.Stats()})
}

// handleCapturePage is the bus handler for starting a capture.
// Payload: {"page_id": "...", "url": "..."}
func (w *Watcher) handleCapturePage(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		PageID string `json:"page_id"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("capture_page: unmarshal: %w", err)
	}

	pageCfg := config.PageConfig{ID: req.PageID, URL: req.URL}
	if pageCfg.LoadTimeout <= 0 {
		pageCfg.LoadTimeout = 30 * time.Second
	}
	if err := w.CapturePage(ctx, pageCfg); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"status": "capturing", "page_id": req.PageID})
}

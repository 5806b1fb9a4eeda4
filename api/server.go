// Package api exposes captured page data over HTTP. Read-only: the
// agent writes to the store, the API queries it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/drdom/drdom/bus"
	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/pagestore"
)

// Server serves the capture query API.
type Server struct {
	store    *pagestore.Store
	bus      *bus.Bus
	logger   *slog.Logger
	sanitize *bluemonday.Policy
	router   *chi.Mux
}

// NewServer creates the API server over a page store. The bus is
// optional; without it /api/stats reports only stored data.
func NewServer(store *pagestore.Store, b *bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		bus:      b,
		logger:   logger,
		sanitize: bluemonday.StrictPolicy(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/api/pages", s.handleListPages)
	r.Get("/api/pages/{domain}", s.handleGetPage)
	r.Get("/api/pages/{domain}/events", s.handleGetEvents)
	r.Get("/api/stats", s.handleStats)
	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the API until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("api: listening", "addr", addr)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

// GET /api/pages
func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("api: list pages", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"pages": list})
}

// GET /api/pages/{domain}
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	rec, err := s.store.Get(r.Context(), domain)
	if err != nil {
		s.logger.Error("api: get page", "domain", domain, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "no capture record for domain", http.StatusNotFound)
		return
	}

	s.writeJSON(w, pageView{
		Domain:        rec.Domain,
		SessionID:     rec.SessionID,
		PageURL:       rec.PageURL,
		StartedAt:     rec.StartedAt,
		LastFlushedAt: rec.LastFlushedAt,
		IsLive:        rec.IsLive,
		EventCount:    len(rec.Events),
		Evicted:       rec.Evicted,
		Trackers:      trackerBreakdown(rec.Events),
	})
}

// GET /api/pages/{domain}/events?kind=&limit=
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	rec, err := s.store.Get(r.Context(), domain)
	if err != nil {
		s.logger.Error("api: get events", "domain", domain, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "no capture record for domain", http.StatusNotFound)
		return
	}

	kind := event.Kind(r.URL.Query().Get("kind"))
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := make([]event.Captured, 0, limit)
	for i := len(rec.Events) - 1; i >= 0 && len(events) < limit; i-- {
		ev := rec.Events[i]
		if kind != "" && ev.Kind != kind {
			continue
		}
		events = append(events, s.sanitizeEvent(ev))
	}

	s.writeJSON(w, map[string]any{
		"domain": rec.Domain,
		"total":  len(rec.Events),
		"events": events,
	})
}

// GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}

	stored, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("api: stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out["stored"] = stored

	if s.bus != nil {
		resp, err := s.bus.Call(r.Context(), "capture_stats", nil)
		if err != nil {
			s.logger.Warn("api: capture_stats unavailable", "error", err)
		} else {
			out["live"] = json.RawMessage(resp)
		}
	}
	s.writeJSON(w, out)
}

type pageView struct {
	Domain        string         `json:"domain"`
	SessionID     string         `json:"session_id"`
	PageURL       string         `json:"page_url,omitempty"`
	StartedAt     int64          `json:"started_at"`
	LastFlushedAt int64          `json:"last_flushed_at"`
	IsLive        bool           `json:"is_live"`
	EventCount    int            `json:"event_count"`
	Evicted       int            `json:"evicted,omitempty"`
	Trackers      map[string]int `json:"trackers"`
}

func trackerBreakdown(events []event.Captured) map[string]int {
	out := map[string]int{}
	for _, ev := range events {
		if ev.Tag != nil {
			out[ev.Tag.Platform]++
		}
	}
	return out
}

// sanitizeEvent strips markup from page-controlled text before it
// reaches API clients. Console messages, response excerpts and script
// sources all originate in untrusted page code.
func (s *Server) sanitizeEvent(ev event.Captured) event.Captured {
	p := ev.Payload
	p.Message = s.sanitize.Sanitize(p.Message)
	p.ResponseText = s.sanitize.Sanitize(p.ResponseText)
	p.ScriptSrc = s.sanitize.Sanitize(p.ScriptSrc)
	ev.Payload = p
	return ev
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("api: encode response", "error", err)
	}
}

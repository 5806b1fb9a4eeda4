// Package instrument installs the page-side capture hooks over CDP. It
// injects instrument.js at document-start so fetch/XHR wrapping happens
// before any page script runs, and receives raw records back through a
// Runtime binding.
package instrument

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/drdom/drdom/capture/internal/normalize"
)

//go:embed instrument.js
var script string

// BindingName is the CDP binding instrument.js ships records through.
const BindingName = "__drdom_binding"

// opUnload is the sentinel record emitted on pagehide.
const opUnload = "unload"

// Hooks wires instrument.js into a single page and dispatches its records.
type Hooks struct {
	page     *rod.Page
	ctx      context.Context
	onRaw    func(normalize.Raw)
	onUnload func()
	logger   *slog.Logger
}

// Config for installing hooks on a page.
type Config struct {
	Page *rod.Page
	// OnRaw receives every decoded record in arrival order.
	OnRaw func(normalize.Raw)
	// OnUnload fires when the page signals pagehide; the caller should
	// force-flush its buffer.
	OnUnload func()
	Logger   *slog.Logger
}

// Install sets up the binding, injects the script for future documents and
// the current one, and starts the binding listener. The script carries its
// own install guard, so injecting into a page that already has it is safe.
func Install(ctx context.Context, cfg Config) (*Hooks, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Hooks{
		page:     cfg.Page,
		ctx:      ctx,
		onRaw:    cfg.OnRaw,
		onUnload: cfg.OnUnload,
		logger:   cfg.Logger,
	}

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(h.page); err != nil {
		h.logger.Warn("instrument: addBinding failed (may already exist)", "error", err)
	}

	go h.listen()

	// Future documents: inject before any page script.
	_, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: script}.Call(h.page)
	if err != nil {
		return nil, fmt.Errorf("instrument: add script on new document: %w", err)
	}

	// Current document, if one is already loaded.
	if _, err := h.page.Eval(script); err != nil {
		h.logger.Warn("instrument: eval into current document failed", "error", err)
	}

	return h, nil
}

// listen receives binding calls until the context is cancelled.
func (h *Hooks) listen() {
	h.page.Context(h.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName {
			return
		}
		records, err := DecodePayload(e.Payload)
		if err != nil {
			h.logger.Warn("instrument: bad binding payload dropped", "error", err)
			return
		}
		for _, raw := range records {
			if raw.Op == opUnload {
				if h.onUnload != nil {
					h.onUnload()
				}
				continue
			}
			if h.onRaw != nil {
				h.onRaw(raw)
			}
		}
	})()
}

// DecodePayload parses one binding payload: a JSON array of raw records.
func DecodePayload(payload string) ([]normalize.Raw, error) {
	var records []normalize.Raw
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("instrument: decode payload: %w", err)
	}
	return records, nil
}

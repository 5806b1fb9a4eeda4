// Package normalize converts raw instrumentation records (as shipped over the
// CDP binding by instrument.js) into canonical, immutable capture events.
//
// One raw record yields zero events (suppressed or malformed), one event, or
// two (a request event plus a tracker-detected event when classification
// matches).
package normalize

import (
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/classify"
	"github.com/drdom/drdom/idgen"
)

// maxBodyExcerpt bounds the retained prefix of non-JSON response bodies.
const maxBodyExcerpt = 1000

// maxTrackedStarts bounds the correlation table; beyond it the oldest
// entries are forgotten and late phases lose their computed duration only.
const maxTrackedStarts = 2048

// Raw is the wire shape instrument.js sends through the binding. Op encodes
// source and lifecycle stage, e.g. "fetch:start", "xhr:complete", "perf",
// "script", "console", "pageerror".
type Raw struct {
	Op     string  `json:"op"`
	CID    string  `json:"cid,omitempty"`
	T      float64 `json:"t"`    // performance.now() at capture, ms
	Wall   int64   `json:"wall"` // Date.now() at capture
	URL    string  `json:"url,omitempty"`
	Method string  `json:"method,omitempty"`
	Status int     `json:"status,omitempty"`
	Size   int64   `json:"size,omitempty"`
	Body   string  `json:"body,omitempty"` // response body excerpt, raw text
	Msg    string  `json:"msg,omitempty"`
	Level  string  `json:"level,omitempty"`

	// script records
	Src    string `json:"src,omitempty"`
	Inline int    `json:"inline,omitempty"`

	// perf records
	EntryType     string  `json:"entry_type,omitempty"`
	InitiatorType string  `json:"initiator_type,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
}

// Normalizer turns Raw records into event.Captured values for one page. It
// tracks request start times per correlation id so error phases carry a
// duration even when no complete phase will ever arrive.
type Normalizer struct {
	domain string
	newID  idgen.Generator
	logger *slog.Logger

	starts     map[string]float64 // cid → monotonic start
	startOrder []string           // insertion order for pruning
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithIDGenerator overrides the event id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(n *Normalizer) { n.newID = gen }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// New creates a Normalizer for a page on the given domain.
func New(domain string, opts ...Option) *Normalizer {
	n := &Normalizer{
		domain: domain,
		newID:  idgen.TimeRand(6),
		logger: slog.Default(),
		starts: make(map[string]float64),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize converts one raw record. Malformed records are dropped with a
// warning; they never fail the pipeline.
func (n *Normalizer) Normalize(raw Raw) []event.Captured {
	switch raw.Op {
	case "fetch:start", "xhr:start":
		return n.requestStart(raw)
	case "fetch:headers", "xhr:headers":
		return n.requestPhase(raw, event.PhaseHeaders)
	case "fetch:complete", "xhr:complete":
		return n.requestPhase(raw, event.PhaseComplete)
	case "fetch:error", "xhr:error":
		return n.requestPhase(raw, event.PhaseError)
	case "perf":
		return n.perfEntry(raw)
	case "script":
		return n.scriptInjected(raw)
	case "console":
		return n.console(raw)
	case "pageerror":
		return n.pageError(raw)
	default:
		n.logger.Warn("normalize: unknown raw op dropped", "op", raw.Op, "domain", n.domain)
		return nil
	}
}

func (n *Normalizer) source(raw Raw) event.Source {
	if len(raw.Op) >= 3 && raw.Op[:3] == "xhr" {
		return event.SourceXHR
	}
	return event.SourceFetch
}

func (n *Normalizer) requestStart(raw Raw) []event.Captured {
	if raw.URL == "" {
		n.logger.Warn("normalize: request start without url dropped", "op", raw.Op)
		return nil
	}
	cid := raw.CID
	if cid == "" {
		cid = n.newID()
	}
	n.trackStart(cid, raw.T)

	ev := event.Captured{
		ID:            n.newID(),
		CorrelationID: cid,
		Kind:          event.KindRequest,
		Phase:         event.PhaseStart,
		Source:        n.source(raw),
		Monotonic:     raw.T,
		WallClock:     raw.Wall,
		Payload: event.Payload{
			URL:        raw.URL,
			Method:     raw.Method,
			ThirdParty: classify.ThirdParty(n.domain, raw.URL),
		},
	}

	out := []event.Captured{ev}
	if tag := classify.Match(raw.URL); tag != nil {
		out[0].Tag = tag
		out = append(out, event.Captured{
			ID:            n.newID(),
			CorrelationID: cid,
			Kind:          event.KindTracker,
			Source:        n.source(raw),
			Monotonic:     raw.T,
			WallClock:     raw.Wall,
			Payload: event.Payload{
				URL:        raw.URL,
				Method:     raw.Method,
				ThirdParty: classify.ThirdParty(n.domain, raw.URL),
				Pixel:      classify.IsTrackingPixel(raw.URL),
			},
			Tag: tag,
		})
	}
	return out
}

func (n *Normalizer) requestPhase(raw Raw, phase event.Phase) []event.Captured {
	if raw.CID == "" {
		n.logger.Warn("normalize: request phase without correlation id dropped",
			"op", raw.Op, "url", raw.URL)
		return nil
	}

	duration := raw.Duration
	if duration == 0 {
		if start, ok := n.starts[raw.CID]; ok && raw.T > start {
			duration = raw.T - start
		}
	}
	if phase == event.PhaseComplete || phase == event.PhaseError {
		n.forgetStart(raw.CID)
	}

	ev := event.Captured{
		ID:            n.newID(),
		CorrelationID: raw.CID,
		Kind:          event.KindRequest,
		Phase:         phase,
		Source:        n.source(raw),
		Monotonic:     raw.T,
		WallClock:     raw.Wall,
		Payload: event.Payload{
			URL:        raw.URL,
			Method:     raw.Method,
			Status:     raw.Status,
			DurationMs: duration,
			SizeBytes:  raw.Size,
		},
	}

	if phase == event.PhaseError {
		ev.Payload.Message = raw.Msg
	}
	if phase == event.PhaseComplete && raw.Body != "" {
		setBody(&ev.Payload, raw.Body)
	}
	if tag := classify.Match(raw.URL); tag != nil {
		ev.Tag = tag
	}
	return []event.Captured{ev}
}

// perfEntry normalizes a PerformanceObserver record. Resource entries that
// duplicate direct fetch/XHR instrumentation are suppressed so requests are
// not double counted — the direct hooks carry richer data.
func (n *Normalizer) perfEntry(raw Raw) []event.Captured {
	if raw.EntryType == "resource" &&
		(raw.InitiatorType == "fetch" || raw.InitiatorType == "xmlhttprequest") {
		return nil
	}

	ev := event.Captured{
		ID:        n.newID(),
		Kind:      event.KindRequest,
		Phase:     event.PhaseComplete,
		Source:    event.SourcePerformance,
		Monotonic: raw.T,
		WallClock: raw.Wall,
		Payload: event.Payload{
			URL:           raw.URL,
			DurationMs:    raw.Duration,
			SizeBytes:     raw.Size,
			EntryType:     raw.EntryType,
			InitiatorType: raw.InitiatorType,
			ThirdParty:    classify.ThirdParty(n.domain, raw.URL),
		},
	}

	out := []event.Captured{ev}
	if tag := classify.Match(raw.URL); tag != nil {
		out[0].Tag = tag
		payload := out[0].Payload
		payload.Pixel = classify.IsTrackingPixel(raw.URL)
		out = append(out, event.Captured{
			ID:        n.newID(),
			Kind:      event.KindTracker,
			Source:    event.SourcePerformance,
			Monotonic: raw.T,
			WallClock: raw.Wall,
			Payload:   payload,
			Tag:       tag,
		})
	}
	return out
}

func (n *Normalizer) scriptInjected(raw Raw) []event.Captured {
	ev := event.Captured{
		ID:        n.newID(),
		Kind:      event.KindScriptInjected,
		Source:    event.SourceMutation,
		Monotonic: raw.T,
		WallClock: raw.Wall,
		Payload: event.Payload{
			ScriptSrc:    raw.Src,
			InlineLength: raw.Inline,
			ThirdParty:   classify.ThirdParty(n.domain, raw.Src),
		},
	}

	out := []event.Captured{ev}
	if tag := classify.Match(raw.Src); tag != nil {
		out[0].Tag = tag
		out = append(out, event.Captured{
			ID:        n.newID(),
			Kind:      event.KindTracker,
			Source:    event.SourceMutation,
			Monotonic: raw.T,
			WallClock: raw.Wall,
			Payload:   out[0].Payload,
			Tag:       tag,
		})
	}
	return out
}

func (n *Normalizer) console(raw Raw) []event.Captured {
	return []event.Captured{{
		ID:        n.newID(),
		Kind:      event.KindConsole,
		Source:    event.SourceConsole,
		Monotonic: raw.T,
		WallClock: raw.Wall,
		Payload: event.Payload{
			Level:   raw.Level,
			Message: truncate(raw.Msg, maxBodyExcerpt),
		},
	}}
}

func (n *Normalizer) pageError(raw Raw) []event.Captured {
	return []event.Captured{{
		ID:        n.newID(),
		Kind:      event.KindError,
		Source:    event.SourceConsole,
		Monotonic: raw.T,
		WallClock: raw.Wall,
		Payload: event.Payload{
			Message: truncate(raw.Msg, maxBodyExcerpt),
			URL:     raw.URL,
		},
	}}
}

// setBody stores either the parsed JSON object or a truncated raw prefix,
// never both.
func setBody(p *event.Payload, body string) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		p.ResponseJSON = parsed
		return
	}
	p.ResponseText = truncate(body, maxBodyExcerpt)
	p.BodyTruncated = len(body) > maxBodyExcerpt
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Back up to a rune boundary.
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func (n *Normalizer) trackStart(cid string, t float64) {
	if _, exists := n.starts[cid]; exists {
		return
	}
	n.starts[cid] = t
	n.startOrder = append(n.startOrder, cid)
	if len(n.startOrder) > maxTrackedStarts {
		oldest := n.startOrder[0]
		n.startOrder = n.startOrder[1:]
		delete(n.starts, oldest)
	}
}

func (n *Normalizer) forgetStart(cid string) {
	delete(n.starts, cid)
}

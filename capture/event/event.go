// Package event defines the canonical types flowing through the capture
// pipeline. These are the public API contract: any consumer (pagestore, HTTP
// API, MCP tools, custom sinks) imports this package to receive and process
// captured page activity.
package event

import "github.com/drdom/drdom/classify"

// Kind is the type of captured event.
type Kind string

const (
	KindRequest        Kind = "request"
	KindError          Kind = "error"
	KindConsole        Kind = "console"
	KindScriptInjected Kind = "script-injected"
	KindTracker        Kind = "tracker-detected"
)

// Phase is the lifecycle stage of a request event. A single logical request
// produces multiple Captured events over time, all sharing the same
// correlation id; later phases are new events, never mutations of earlier
// ones.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseHeaders  Phase = "response-headers"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// Source identifies which instrumentation hook produced the raw event.
type Source string

const (
	SourceFetch       Source = "fetch"
	SourceXHR         Source = "xhr"
	SourcePerformance Source = "performance"
	SourceMutation    Source = "mutation"
	SourceConsole     Source = "console"
	SourceStorage     Source = "storage"
)

// Captured is the canonical unit flowing through the pipeline. It is
// immutable once created: the classifier and buffer read it, nothing writes
// it after construction.
type Captured struct {
	ID            string `json:"id"`             // unique, time+random
	CorrelationID string `json:"correlation_id"` // shared across phases of one request
	Kind          Kind   `json:"kind"`
	Phase         Phase  `json:"phase,omitempty"` // request kind only
	Source        Source `json:"source"`
	Monotonic     float64 `json:"monotonic"` // performance.now() at capture, ms
	WallClock     int64   `json:"wall_clock"` // epoch milliseconds

	Payload Payload `json:"payload"`

	// Tag is the classification attached to request/script-injected events.
	// Nil means benign; at most one tag per event (first match wins).
	Tag *classify.Classification `json:"tag,omitempty"`
}

// Payload carries the kind-specific fields. Zero values mean "not applicable
// for this kind/phase".
type Payload struct {
	URL        string  `json:"url,omitempty"`
	Method     string  `json:"method,omitempty"`
	Status     int     `json:"status,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`

	// ResponseJSON holds the parsed body when it was valid JSON;
	// ResponseText holds the truncated raw prefix otherwise. Never both.
	ResponseJSON  map[string]any `json:"response_json,omitempty"`
	ResponseText  string         `json:"response_text,omitempty"`
	BodyTruncated bool           `json:"body_truncated,omitempty"`

	// Error fields (kind=error or phase=error).
	Message string `json:"message,omitempty"`

	// Console fields.
	Level string `json:"level,omitempty"`

	// Script injection fields.
	ScriptSrc    string `json:"script_src,omitempty"`
	InlineLength int    `json:"inline_length,omitempty"`

	// Performance entry fields.
	InitiatorType string `json:"initiator_type,omitempty"`
	EntryType     string `json:"entry_type,omitempty"`

	// Cookie or storage key name (source=storage).
	Key string `json:"key,omitempty"`

	ThirdParty bool `json:"third_party,omitempty"`

	// Pixel marks a tracker hit that looks like a tracking pixel (a
	// collection or beacon endpoint) rather than a script or API call.
	Pixel bool `json:"pixel,omitempty"`
}

// Batch is the atomic unit handed to the store merger. One batch = all events
// collected during a single flush cycle.
type Batch struct {
	ID        string     `json:"id"`      // UUIDv7
	Domain    string     `json:"domain"`  // page hostname the session captures for
	SessionID string     `json:"session_id"`
	Seq       uint64     `json:"seq"` // monotonically increasing per session (gap detection)
	Events    []Captured `json:"events"`
	Timestamp int64      `json:"timestamp"` // epoch milliseconds at flush
}

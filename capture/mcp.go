package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/drdom/drdom/capture/event"
	"github.com/drdom/drdom/kit"
	"github.com/drdom/drdom/pagestore"
)

// RegisterMCP registers capture tools on an MCP server.
// Tools: drdom_stats, drdom_page_report.
func (w *Watcher) RegisterMCP(srv *mcp.Server, store *pagestore.Store) {
	w.registerStatsTool(srv, store)
	w.registerPageReportTool(srv, store)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- stats ---

type statsResponse struct {
	Sessions []SessionStats      `json:"sessions"`
	Stored   []pagestore.Summary `json:"stored"`
}

func (w *Watcher) registerStatsTool(srv *mcp.Server, store *pagestore.Store) {
	tool := &mcp.Tool{
		Name:        "drdom_stats",
		Description: "Live capture session statistics plus a summary of stored page captures.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		stored, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		return &statsResponse{Sessions: w.Stats(), Stored: stored}, nil
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- page_report ---

type pageReportRequest struct {
	Domain string `json:"domain"`
	Kind   string `json:"kind,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type pageReportResponse struct {
	Domain     string           `json:"domain"`
	SessionID  string           `json:"session_id"`
	IsLive     bool             `json:"is_live"`
	EventCount int              `json:"event_count"`
	Trackers   map[string]int   `json:"trackers"`   // platform -> hits
	Categories map[string]int   `json:"categories"` // category -> hits
	Events     []event.Captured `json:"events"`
}

func (w *Watcher) registerPageReportTool(srv *mcp.Server, store *pagestore.Store) {
	tool := &mcp.Tool{
		Name:        "drdom_page_report",
		Description: "Captured traffic report for a domain: tracker breakdown and recent events.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Page hostname, e.g. example.com"},
			"kind":   map[string]any{"type": "string", "enum": []any{"request", "error", "console", "script-injected", "tracker-detected"}, "description": "Filter by event kind"},
			"limit":  map[string]any{"type": "integer", "description": "Max events returned (default 50)"},
		}, []string{"domain"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReportRequest)
		rec, err := store.Get(ctx, r.Domain)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("no capture record for domain %q", r.Domain)
		}
		return buildPageReport(rec, event.Kind(r.Kind), r.Limit), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r pageReportRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func buildPageReport(rec *pagestore.Record, kind event.Kind, limit int) *pageReportResponse {
	if limit <= 0 {
		limit = 50
	}

	resp := &pageReportResponse{
		Domain:     rec.Domain,
		SessionID:  rec.SessionID,
		IsLive:     rec.IsLive,
		EventCount: len(rec.Events),
		Trackers:   map[string]int{},
		Categories: map[string]int{},
	}

	for _, ev := range rec.Events {
		if ev.Tag != nil {
			resp.Trackers[ev.Tag.Platform]++
			resp.Categories[string(ev.Tag.Category)]++
		}
	}

	// Most recent events first, optionally filtered by kind.
	for i := len(rec.Events) - 1; i >= 0 && len(resp.Events) < limit; i-- {
		ev := rec.Events[i]
		if kind != "" && ev.Kind != kind {
			continue
		}
		resp.Events = append(resp.Events, ev)
	}
	return resp
}

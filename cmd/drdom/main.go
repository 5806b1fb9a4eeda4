// Command drdom is the page capture agent.
//
// Usage:
//
//	drdom -config drdom.yaml              # capture pages from YAML config
//	drdom -url https://example.com        # quick single-page capture
//	drdom -config drdom.yaml -mcp         # also expose MCP tools on stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/drdom/drdom/api"
	"github.com/drdom/drdom/bus"
	"github.com/drdom/drdom/capture"
	"github.com/drdom/drdom/pagestore"
)

func main() {
	configPath := flag.String("config", "", "path to drdom.yaml config file")
	singleURL := flag.String("url", "", "capture a single URL (stdout sink)")
	dbPath := flag.String("db", "", "page store path (overrides config)")
	serveMCP := flag.Bool("mcp", false, "expose MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *dbPath, *serveMCP); err != nil {
		logger.Error("drdom: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, dbPath string, serveMCP bool) error {
	var cfg *capture.Config

	switch {
	case configPath != "":
		loaded, err := capture.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	case singleURL != "":
		cfg = defaultConfig()
		cfg.Pages = []capture.PageConfig{{
			ID:          "single",
			URL:         singleURL,
			LoadTimeout: 30 * time.Second,
		}}
		cfg.Sinks = []capture.SinkConfig{{Type: "stdout"}}
	default:
		fmt.Fprintln(os.Stderr, "usage: drdom -config <file> | -url <url>")
		os.Exit(1)
	}

	if dbPath != "" {
		cfg.Store.Path = dbPath
	}

	store, err := pagestore.Open(cfg.Store.Path, pagestore.WithMaxEvents(cfg.Store.MaxEvents))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	sinks := buildSinks(cfg, store, logger)
	w := capture.New(cfg, logger, sinks...)
	w.SetSessionEndHook(func(ctx context.Context, domain string) error {
		return store.MarkEnded(ctx, domain)
	})

	b := bus.New(bus.WithLogger(logger))
	w.RegisterBus(b)

	apiSrv := api.NewServer(store, b, logger)
	go func() {
		if err := apiSrv.ListenAndServe(ctx, cfg.API.Addr); err != nil {
			logger.Error("drdom: api server", "error", err)
		}
	}()

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "drdom",
			Version: "1.0.0",
		}, nil)
		w.RegisterMCP(mcpSrv, store)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("drdom: mcp server", "error", err)
			}
		}()
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	w.Stop(context.Background())
	return nil
}

func buildSinks(cfg *capture.Config, store *pagestore.Store, logger *slog.Logger) []capture.Sink {
	// The store always receives batches; configured sinks add to it.
	sinks := []capture.Sink{capture.NewCallbackSink(store.Merge)}

	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, capture.NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, capture.NewWebhookSink(sc.URL, logger))
		default:
			logger.Warn("drdom: unknown sink type", "type", sc.Type)
		}
	}
	return sinks
}

// defaultConfig mirrors the defaults LoadConfigFile applies; the quick
// single-URL path builds its config by hand.
func defaultConfig() *capture.Config {
	return &capture.Config{
		Buffer: capture.BufferConfig{Count: 5, MaxLatency: 500 * time.Millisecond},
		Store:  capture.StoreConfig{Path: "drdom.db", MaxEvents: 1500},
		API:    capture.APIConfig{Addr: ":8700"},
	}
}

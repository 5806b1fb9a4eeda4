// Package bus is a small request/response dispatcher for in-process
// services. Consumers call services by name without knowing whether
// the handler is a local Go function or a remote HTTP endpoint.
//
//	b := bus.New()
//	b.RegisterLocal("capture_stats", statsHandler)
//
//	resp, err := b.Call(ctx, "capture_stats", payload)
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
// Both local Go functions and remote HTTP clients implement this
// signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// ErrServiceNotFound is returned when Call targets a service with no
// registered handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("bus: service not routable: %s", e.Service)
}

// Bus dispatches service calls by name. Thread-safe: reads use RLock,
// registrations use full Lock.
type Bus struct {
	mu     sync.RWMutex
	local  map[string]Handler
	remote map[string]Handler
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		local:  make(map[string]Handler),
		remote: make(map[string]Handler),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// RegisterLocal registers an in-memory handler for a service. The
// function lives in the same binary, so dispatch is a plain call with
// zero network overhead.
func (b *Bus) RegisterLocal(service string, h Handler) {
	b.mu.Lock()
	b.local[service] = h
	b.mu.Unlock()
}

// RegisterRemote registers a handler backed by a remote endpoint.
// A remote registration takes priority over a local one for the same
// service name.
func (b *Bus) RegisterRemote(service string, h Handler) {
	b.mu.Lock()
	b.remote[service] = h
	b.mu.Unlock()
}

// Unregister removes both local and remote handlers for a service.
func (b *Bus) Unregister(service string) {
	b.mu.Lock()
	delete(b.local, service)
	delete(b.remote, service)
	b.mu.Unlock()
}

// Call dispatches a service call. Remote handlers take priority, then
// local ones. Callers never need to know which side answered.
func (b *Bus) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	b.mu.RLock()
	remoteH := b.remote[service]
	localH := b.local[service]
	b.mu.RUnlock()

	if remoteH != nil {
		b.logger.DebugContext(ctx, "bus: routing remote", "service", service)
		return remoteH(ctx, payload)
	}
	if localH != nil {
		b.logger.DebugContext(ctx, "bus: routing local", "service", service)
		return localH(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Services lists all registered service names.
func (b *Bus) Services() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{}, len(b.local)+len(b.remote))
	for name := range b.local {
		seen[name] = struct{}{}
	}
	for name := range b.remote {
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out
}

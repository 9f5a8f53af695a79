// Package router maps "category.action" event types to handlers and
// invokes them under a per-route timeout.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
)

// Handler applies one event's business effect. Handlers must be idempotent
// per event id (the pipeline may re-dispatch after an ambiguous timeout)
// and safely abandon-able: on timeout the router walks away without
// cancelling in-flight work, so a handler's own I/O should carry the
// request context to bound how long orphaned work holds resources.
type Handler interface {
	Handle(ctx context.Context, event domain.ParsedEvent) domain.HandlerResult
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event domain.ParsedEvent) domain.HandlerResult

func (f HandlerFunc) Handle(ctx context.Context, event domain.ParsedEvent) domain.HandlerResult {
	return f(ctx, event)
}

const DefaultTimeout = 30 * time.Second

// Route binds one event type to its handler and required-field contract.
type Route struct {
	EventType      string
	Handler        Handler
	RequiredFields []string
	Enabled        bool
	Timeout        time.Duration
}

// RoutingResult reports what Dispatch did. Routed is true only when the
// handler actually ran to completion; Err carries the domain error kind
// otherwise.
type RoutingResult struct {
	Routed bool
	Result domain.HandlerResult
	Err    error
}

// Registry is built once at startup and injected into the pipeline; it is
// read-only during request processing apart from category-level
// enable/disable flips.
type Registry struct {
	mu         sync.RWMutex
	routes     map[string]*Route
	byCategory map[domain.EventCategory][]string
}

func NewRegistry() *Registry {
	return &Registry{
		routes:     make(map[string]*Route),
		byCategory: make(map[domain.EventCategory][]string),
	}
}

// Register adds a route. Re-registering an event type overwrites the
// previous route (overwrite-by-design, so wiring can layer defaults).
func (r *Registry) Register(route Route) error {
	category, _, ok := domain.SplitEventType(route.EventType)
	if !ok {
		return fmt.Errorf("Register: %q: %w", route.EventType, domain.ErrInvalidEventType)
	}
	if !category.IsValid() {
		return fmt.Errorf("Register: %q: %w", route.EventType, domain.ErrInvalidCategory)
	}
	if route.Handler == nil {
		return fmt.Errorf("Register: %q: nil handler", route.EventType)
	}
	if route.Timeout <= 0 {
		route.Timeout = DefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[route.EventType]; !exists {
		r.byCategory[category] = append(r.byCategory[category], route.EventType)
	}
	r.routes[route.EventType] = &route
	return nil
}

// SetCategoryEnabled flips every route in a category, for bulk kill-switch
// use during provider incidents.
func (r *Registry) SetCategoryEnabled(category domain.EventCategory, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, eventType := range r.byCategory[category] {
		r.routes[eventType].Enabled = enabled
	}
}

// Dispatch routes event to its handler. The handler races a timer in its
// own goroutine; when the timer wins, the result channel stays buffered so
// the abandoned goroutine can still send and exit, and ErrHandlerTimeout
// (retryable) is surfaced with the handler's eventual result discarded.
func (r *Registry) Dispatch(ctx context.Context, event domain.ParsedEvent) RoutingResult {
	r.mu.RLock()
	route, ok := r.routes[event.EventType]
	r.mu.RUnlock()

	if !ok {
		return RoutingResult{Err: fmt.Errorf("Dispatch: %q: %w", event.EventType, domain.ErrNoHandlerRegistered)}
	}
	if !route.Enabled {
		return RoutingResult{Err: fmt.Errorf("Dispatch: %q: %w", event.EventType, domain.ErrHandlerDisabled)}
	}

	for _, field := range route.RequiredFields {
		if v, present := event.Entity[field]; !present || v == nil {
			return RoutingResult{Err: &domain.MissingFieldError{Field: "payload.entity." + field}}
		}
	}

	resCh := make(chan domain.HandlerResult, 1)
	go func() {
		resCh <- route.Handler.Handle(ctx, event)
	}()

	timer := time.NewTimer(route.Timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return RoutingResult{Routed: true, Result: res}
	case <-timer.C:
		return RoutingResult{Err: fmt.Errorf("Dispatch: %q after %s: %w", event.EventType, route.Timeout, domain.ErrHandlerTimeout)}
	}
}

// Types returns the registered event types, for startup logging.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	return types
}

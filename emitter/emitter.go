// Package emitter provides the typed publish/subscribe channel used by a
// checkout instance to deliver lifecycle and payment events. Handlers are
// isolated from each other and from the emitter's caller: a handler that
// panics is recovered and logged, and the remaining handlers still run.
package emitter

import (
	"log/slog"
	"reflect"
	"sync"
)

// Handler receives the arguments passed to [Emitter.Emit].
type Handler func(args ...any)

type listener struct {
	fn   Handler
	ptr  uintptr
	once bool
}

// Emitter is a per-instance event channel. Registration order is preserved
// and Emit invokes handlers synchronously in that order. The zero value is
// not usable; construct with [New].
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]*listener
	logger    *slog.Logger
}

// Option customizes an [Emitter].
type Option func(*Emitter)

// WithLogger sets the logger used to report recovered handler panics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an empty [Emitter].
func New(opts ...Option) *Emitter {
	e := &Emitter{
		listeners: make(map[string][]*listener),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// On registers fn for event. The same function may be registered multiple
// times and will then be invoked once per registration.
func (e *Emitter) On(event string, fn Handler) {
	e.register(event, fn, false)
}

// Once registers fn for a single delivery. The registration is removed
// before fn runs, so a handler that re-emits the same event during its own
// execution does not re-invoke itself.
func (e *Emitter) Once(event string, fn Handler) {
	e.register(event, fn, true)
}

func (e *Emitter) register(event string, fn Handler, once bool) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], &listener{
		fn:   fn,
		ptr:  reflect.ValueOf(fn).Pointer(),
		once: once,
	})
}

// Off removes listeners for event. With no handler argument it removes every
// listener for the event. With a handler it removes only registrations of
// that exact function, matched by identity: passing a distinct closure that
// behaves identically is a no-op, so call sites must retain the original
// reference to unregister it later.
func (e *Emitter) Off(event string, fn ...Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(fn) == 0 || fn[0] == nil {
		delete(e.listeners, event)
		return
	}
	target := reflect.ValueOf(fn[0]).Pointer()
	kept := e.listeners[event][:0]
	for _, l := range e.listeners[event] {
		if l.ptr != target {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, event)
		return
	}
	e.listeners[event] = kept
}

// Emit delivers event to every registered handler in registration order and
// reports whether at least one handler was invoked. A panicking handler is
// recovered and logged; it neither prevents the remaining handlers from
// running nor propagates to the caller.
func (e *Emitter) Emit(event string, args ...any) bool {
	e.mu.Lock()
	registered := e.listeners[event]
	snapshot := make([]*listener, len(registered))
	copy(snapshot, registered)
	if len(registered) > 0 {
		kept := registered[:0]
		for _, l := range registered {
			if !l.once {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(e.listeners, event)
		} else {
			e.listeners[event] = kept
		}
	}
	e.mu.Unlock()

	for _, l := range snapshot {
		e.invoke(event, l, args)
	}
	return len(snapshot) > 0
}

func (e *Emitter) invoke(event string, l *listener, args []any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				slog.String("event", event),
				slog.Any("panic", r))
		}
	}()
	l.fn(args...)
}

// RemoveAllListeners drops the given events, or every event when called with
// no arguments.
func (e *Emitter) RemoveAllListeners(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(events) == 0 {
		e.listeners = make(map[string][]*listener)
		return
	}
	for _, event := range events {
		delete(e.listeners, event)
	}
}

// ListenerCount reports how many handlers are registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

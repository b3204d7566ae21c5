package checkout

import (
	"context"
	"time"
)

const (
	defaultLoaderInterval = 100 * time.Millisecond
	defaultLoaderTimeout  = 15 * time.Second
)

// ProviderLoader makes sure the tokenization provider's runtime is available
// before any session is created. Implementations must be idempotent: when
// the provider is already present, EnsureLoaded is a no-op.
type ProviderLoader interface {
	EnsureLoaded(ctx context.Context) error
}

// ProviderLoaderFunc lifts bare functions into [ProviderLoader].
type ProviderLoaderFunc func(ctx context.Context) error

// EnsureLoaded delegates to the wrapped function.
func (f ProviderLoaderFunc) EnsureLoaded(ctx context.Context) error {
	return f(ctx)
}

// PollingLoader bootstraps the provider runtime when a readiness probe
// reports it absent, then polls the probe until it turns ready or the
// bounded timeout expires.
type PollingLoader struct {
	// Probe reports whether the provider runtime is ready.
	Probe func() bool
	// Bootstrap starts loading the provider runtime, typically by injecting
	// its assets into the host environment. Optional.
	Bootstrap func(ctx context.Context) error
	// Interval between probe polls. Defaults to 100ms.
	Interval time.Duration
	// Timeout bounds the whole load. Defaults to 15s.
	Timeout time.Duration
}

// EnsureLoaded implements [ProviderLoader].
func (l *PollingLoader) EnsureLoaded(ctx context.Context) error {
	if l.Probe == nil {
		return NewConfigurationError("provider loader requires a readiness probe")
	}
	if l.Probe() {
		return nil
	}
	if l.Bootstrap != nil {
		if err := l.Bootstrap(ctx); err != nil {
			return NewProviderError("bootstrap provider runtime: "+err.Error(), WithCause(err))
		}
	}

	interval := l.Interval
	if interval <= 0 {
		interval = defaultLoaderInterval
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = defaultLoaderTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if l.Probe() {
				return nil
			}
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return NewProviderError("provider load cancelled", WithCause(ctx.Err()))
			}
			return NewProviderError("provider runtime did not become ready in time")
		}
	}
}

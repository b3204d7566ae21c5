package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Anchor is an opaque render target supplied by the embedding application's
// [Surface]. The SDK never inspects an anchor; it hands it to the
// tokenization provider unchanged.
type Anchor = any

// CardAnchors are the render targets for the hosted card input fields.
// CardholderName is optional; the other three are required by the provider.
type CardAnchors struct {
	Number         Anchor
	Expiry         Anchor
	CVV            Anchor
	CardholderName Anchor
}

// Card field names used by EventInputError payloads.
const (
	FieldCardNumber     = "card_number"
	FieldCardExpiry     = "card_expiry"
	FieldCardCVV        = "card_cvv"
	FieldCardholderName = "cardholder_name"
)

// TokenPayload carries a provider-issued token back into the SDK.
type TokenPayload struct {
	Method Method
	Token  string
}

// MethodHooks are the callbacks a rendered payment method invokes. The
// provider calls OnTokenized when the buyer submits, OnResumed when an
// action-required challenge resolves, OnCancelled when the buyer deselects
// the method, and OnFieldError per failing card field. An error returned
// from OnTokenized or OnResumed is the provider-recognized failure signal:
// the provider resets its UI instead of finalizing.
type MethodHooks struct {
	OnTokenized  func(ctx context.Context, payload TokenPayload) error
	OnResumed    func(ctx context.Context, payload TokenPayload) error
	OnCancelled  func()
	OnFieldError func(field, message string)
}

// MethodHandle is the uniform control surface for one rendered payment
// method. Submit is nil for wallet buttons, which submit through their own
// provider-rendered UI.
type MethodHandle struct {
	Method      Method
	SetDisabled func(disabled bool)
	Submit      func(ctx context.Context) error
	Destroy     func() error
}

// TokenizationProvider is the capability interface over the external
// headless tokenization SDK. Implementations are injected at client
// construction; tests supply in-memory fakes.
type TokenizationProvider interface {
	// CreateSession opens a headless provider session from a billing client
	// token. The SDK guarantees it calls this at most once per checkout.
	CreateSession(ctx context.Context, clientToken string) (ProviderSession, error)
}

// ProviderSession is one headless provider session scoped to a checkout.
type ProviderSession interface {
	// AvailableMethods reports the payment methods the provider can render
	// for this session and device.
	AvailableMethods(ctx context.Context) ([]Method, error)

	// RenderCard wires hosted card input fields into the given anchors and
	// returns a handle whose Submit runs client-side validation before
	// forwarding to the provider.
	RenderCard(ctx context.Context, anchors CardAnchors, config json.RawMessage, hooks MethodHooks) (*MethodHandle, error)

	// RenderButton renders a provider-supplied wallet button into anchor.
	RenderButton(ctx context.Context, method Method, anchor Anchor, config json.RawMessage, hooks MethodHooks) (*MethodHandle, error)

	// ContinueChallenge resumes an action-required flow with the fresh
	// credential; the provider invokes OnResumed when the challenge
	// resolves.
	ContinueChallenge(ctx context.Context, clientToken string) error

	// Close tears the session down.
	Close(ctx context.Context) error
}

// MethodPriority suppresses a generic method when a device-specific one is
// available. The rules are configuration data, not hardcoded logic, so the
// SDK can be pointed at other provider ecosystems.
type MethodPriority struct {
	Preferred  Method
	Suppresses Method
}

// defaultMethodPriority prefers the device wallet over the generic one.
var defaultMethodPriority = []MethodPriority{
	{Preferred: MethodApplePay, Suppresses: MethodGooglePay},
}

// filterMethods applies the allow-list, the priority suppression rules, and
// the caller's preferred ordering to the provider-reported methods.
func filterMethods(available, allowed []Method, rules []MethodPriority, order []Method) []Method {
	present := make(map[Method]bool, len(available))
	for _, m := range available {
		present[m] = true
	}

	allowAll := len(allowed) == 0
	allowedSet := make(map[Method]bool, len(allowed))
	for _, m := range allowed {
		allowedSet[m] = true
	}

	// Only a method that itself survives the allow-list may suppress
	// another; an excluded wallet must not take the fallback down with it.
	suppressed := make(map[Method]bool)
	for _, rule := range rules {
		if present[rule.Preferred] && (allowAll || allowedSet[rule.Preferred]) {
			suppressed[rule.Suppresses] = true
		}
	}

	var filtered []Method
	keep := func(m Method) bool {
		return present[m] && !suppressed[m] && (allowAll || allowedSet[m])
	}
	seen := make(map[Method]bool)
	for _, m := range order {
		if keep(m) && !seen[m] {
			filtered = append(filtered, m)
			seen[m] = true
		}
	}
	for _, m := range available {
		if keep(m) && !seen[m] {
			filtered = append(filtered, m)
			seen[m] = true
		}
	}
	return filtered
}

// providerBinding owns the adapter state for one checkout: the single
// headless session, the rendered method handles, and their teardown.
type providerBinding struct {
	provider TokenizationProvider
	loader   ProviderLoader
	logger   *slog.Logger

	initGroup singleflight.Group

	mu      sync.Mutex
	session ProviderSession
	handles []*MethodHandle
	closed  bool
}

func newProviderBinding(provider TokenizationProvider, loader ProviderLoader, logger *slog.Logger) *providerBinding {
	return &providerBinding{
		provider: provider,
		loader:   loader,
		logger:   logger,
	}
}

// ensureSession creates the underlying headless session exactly once.
// Concurrent calls while one creation is pending await the same in-flight
// initialization instead of starting a second one.
func (b *providerBinding) ensureSession(ctx context.Context, clientToken string) (ProviderSession, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, NewLifecycleError("provider session is destroyed")
	}
	if b.session != nil {
		session := b.session
		b.mu.Unlock()
		return session, nil
	}
	b.mu.Unlock()

	result, err, _ := b.initGroup.Do("session", func() (any, error) {
		b.mu.Lock()
		if b.session != nil {
			session := b.session
			b.mu.Unlock()
			return session, nil
		}
		b.mu.Unlock()

		if err := b.loader.EnsureLoaded(ctx); err != nil {
			return nil, asSDKError(err, ErrorKindProvider)
		}
		session, err := b.provider.CreateSession(ctx, clientToken)
		if err != nil {
			return nil, asSDKError(err, ErrorKindProvider)
		}
		b.mu.Lock()
		b.session = session
		b.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(ProviderSession), nil
}

// current returns the established headless session.
func (b *providerBinding) current() (ProviderSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.session == nil {
		return nil, NewLifecycleError("provider session is not available")
	}
	return b.session, nil
}

// track registers a rendered handle for teardown at destroy time.
func (b *providerBinding) track(handle *MethodHandle) {
	if handle == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handles = append(b.handles, handle)
}

// wrapHooks guards the orchestrator's business logic running inside the
// provider's call stack. A panic is converted into a provider failure signal
// and reported through onFailure instead of unwinding into the provider.
func (b *providerBinding) wrapHooks(hooks MethodHooks, onFailure func(*Error)) MethodHooks {
	guard := func(fn func(ctx context.Context, payload TokenPayload) error) func(ctx context.Context, payload TokenPayload) error {
		if fn == nil {
			return nil
		}
		return func(ctx context.Context, payload TokenPayload) (err error) {
			defer func() {
				if r := recover(); r != nil {
					sdkErr := NewProviderError(fmt.Sprintf("payment callback panicked: %v", r))
					b.logger.Error("payment callback panicked",
						slog.String("method", string(payload.Method)),
						slog.Any("panic", r))
					if onFailure != nil {
						onFailure(sdkErr)
					}
					err = sdkErr
				}
			}()
			return fn(ctx, payload)
		}
	}
	wrapped := hooks
	wrapped.OnTokenized = guard(hooks.OnTokenized)
	wrapped.OnResumed = guard(hooks.OnResumed)
	return wrapped
}

// destroy tears down every rendered method and the headless session.
// Individual failures are logged and do not abort the remaining cleanups.
func (b *providerBinding) destroy(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	handles := b.handles
	session := b.session
	b.handles = nil
	b.session = nil
	b.mu.Unlock()

	for _, handle := range handles {
		if handle.Destroy == nil {
			continue
		}
		if err := handle.Destroy(); err != nil {
			b.logger.Warn("payment method teardown failed",
				slog.String("method", string(handle.Method)),
				slog.Any("error", err))
		}
	}
	if session != nil {
		if err := session.Close(ctx); err != nil {
			b.logger.Warn("provider session close failed", slog.Any("error", err))
		}
	}
}

package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/embilling/checkout-go/emitter"
)

// Checkout is one checkout instance. It owns the lifecycle state machine,
// drives the session, render, tokenize/resume, result pipeline, and delivers
// lifecycle events through the embedded [emitter.Emitter].
//
// Instances are created with [Client.CreateCheckout] and are safe for
// concurrent use.
type Checkout struct {
	*emitter.Emitter

	id      string
	client  *Client
	backend *BackendClient
	binding *providerBinding
	surface Surface
	logger  *slog.Logger
	opts    CheckoutOptions

	orgID       string
	graceWindow time.Duration

	mu          sync.Mutex
	state       State
	orderID     string
	clientToken string
	priceID     string
	fingerprint string
	destroyed   bool
	busy        int
	// generation bumps on every purchase attempt and on destroy; results
	// carrying an older generation are stale and must be ignored.
	generation uint64
}

// ID returns the opaque instance id, unique per instance and never reused.
func (c *Checkout) ID() string {
	return c.id
}

// Status reports a consistent snapshot of the instance.
func (c *Checkout) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ID:          c.id,
		State:       c.state,
		OrderID:     c.orderID,
		PriceID:     c.priceID,
		IsDestroyed: c.destroyed,
	}
}

// OrderID returns the order the checkout is attached to, empty before the
// session exists or after destruction.
func (c *Checkout) OrderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderID
}

// IsReady reports whether the instance accepts purchase attempts.
func (c *Checkout) IsReady() bool {
	return c.IsInState(StateReady)
}

// IsProcessing reports whether a payment attempt is underway. An
// action-required challenge counts as processing.
func (c *Checkout) IsProcessing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.inFlight()
}

// IsInState reports whether the instance is currently in state.
func (c *Checkout) IsInState(state State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == state
}

// setState applies a transition and delivers the matching status-change
// synchronously, with no suspension between the two.
func (c *Checkout) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	c.Emit(EventStatusChange, next, prev)
}

// beginWork increments the reentrant busy counter and returns the paired
// release. The aggregated loading signal is true iff the counter is above
// zero, so the signal stays correct when several async suboperations toggle
// loading independently. The release is idempotent and must run on every
// exit path; callers defer it.
func (c *Checkout) beginWork() func() {
	c.mu.Lock()
	c.busy++
	first := c.busy == 1
	c.mu.Unlock()
	if first {
		c.Emit(EventLoaderChange, true)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.busy--
			last := c.busy == 0
			c.mu.Unlock()
			if last {
				c.Emit(EventLoaderChange, false)
			}
		})
	}
}

// stale reports whether a result produced under generation should be
// discarded: the instance was destroyed or a newer attempt superseded it.
func (c *Checkout) stale(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed || c.generation != generation
}

// initialize runs the session, provider, render pipeline and moves the
// instance to ready. Any failure aborts initialization; the caller
// transitions to error and re-raises.
func (c *Checkout) initialize(ctx context.Context) error {
	done := c.beginWork()
	defer done()

	session, err := c.client.sessions.GetOrCreate(c.fingerprint, func() (*Session, error) {
		return c.backend.CreateSession(ctx, SessionParams{
			PriceID:  c.priceID,
			Customer: c.opts.Customer,
			Metadata: c.opts.ClientMetadata,
		})
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.orderID = session.OrderID
	c.clientToken = session.ClientToken
	c.mu.Unlock()

	providerSession, err := c.binding.ensureSession(ctx, session.ClientToken)
	if err != nil {
		return err
	}
	available, err := providerSession.AvailableMethods(ctx)
	if err != nil {
		return asSDKError(err, ErrorKindProvider)
	}
	methods := filterMethods(available, c.opts.AllowedMethods, c.client.methodPriority, c.opts.PaymentMethodOrder)
	if len(methods) == 0 {
		return NewProviderError("no payment methods available for this session")
	}
	c.Emit(EventMethodsAvailable, methods)

	// Methods render concurrently; the relative order of their
	// method-render events is not guaranteed across methods.
	g, renderCtx := errgroup.WithContext(ctx)
	for _, method := range methods {
		method := method
		g.Go(func() error {
			handle, err := c.renderMethod(renderCtx, providerSession, method)
			if err != nil {
				sdkErr := asSDKError(err, ErrorKindProvider)
				c.Emit(EventMethodRenderError, method, sdkErr)
				return sdkErr
			}
			c.binding.track(handle)
			c.Emit(EventMethodRender, method)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.setState(StateReady)
	return nil
}

func (c *Checkout) renderMethod(ctx context.Context, session ProviderSession, method Method) (*MethodHandle, error) {
	config, err := buildRenderConfig(method, c.surface, c.opts.MethodOptions[method])
	if err != nil {
		return nil, err
	}
	hooks := c.binding.wrapHooks(c.methodHooks(method), c.failPurchase)
	if method == MethodCard {
		return session.RenderCard(ctx, c.surface.CardAnchors(), config, hooks)
	}
	return session.RenderButton(ctx, method, c.surface.MethodAnchor(method), config, hooks)
}

// UpdatePrice moves the checkout to a new price. It is forbidden while a
// payment attempt is in flight and fails without starting a request.
func (c *Checkout) UpdatePrice(ctx context.Context, priceID string) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return NewLifecycleError("checkout is destroyed")
	}
	if c.state.inFlight() {
		c.mu.Unlock()
		return NewLifecycleError("cannot update price while a payment is in flight")
	}
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return NewLifecycleError("cannot update price in state " + state.String())
	}
	prev := c.state
	c.state = StateUpdating
	orderID := c.orderID
	oldFingerprint := c.fingerprint
	c.mu.Unlock()

	c.Emit(EventStatusChange, StateUpdating, prev)
	done := c.beginWork()
	defer done()

	session, err := c.backend.UpdateSession(ctx, orderID, priceID)
	if err != nil {
		sdkErr := asSDKError(err, ErrorKindBackendAPI)
		c.setState(StateError)
		c.Emit(EventError, sdkErr)
		return sdkErr
	}

	// The cached session no longer matches the price it was keyed by.
	c.client.sessions.Invalidate(oldFingerprint)

	c.mu.Lock()
	c.priceID = priceID
	c.orderID = session.OrderID
	c.clientToken = session.ClientToken
	c.fingerprint = sessionFingerprint(c.orgID, priceID, c.opts.Customer.ExternalID, c.opts.Customer.Email)
	c.mu.Unlock()

	c.setState(StateReady)
	return nil
}

// Destroy tears the instance down. It is idempotent: calling it on an
// already-destroyed instance is a silent no-op. Teardown failures are logged
// only; destruction always completes and never raises.
func (c *Checkout) Destroy(ctx context.Context) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.generation++
	c.mu.Unlock()

	c.binding.destroy(ctx)
	c.setState(StateDestroyed)

	c.mu.Lock()
	c.orderID = ""
	c.clientToken = ""
	c.mu.Unlock()

	// The destroy event must reach listeners before they are removed.
	c.Emit(EventDestroy)
	c.RemoveAllListeners()
}

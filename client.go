package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/embilling/checkout-go/emitter"
)

const defaultGraceWindow = 5 * time.Second

// CheckoutOptions configures one checkout creation.
type CheckoutOptions struct {
	// OrgID overrides the organization id set with [Configure]. One of the
	// two must resolve or creation fails with a configuration error.
	OrgID string `json:"org_id,omitempty"`

	PriceID  string   `json:"price_id" validate:"required"`
	Customer Customer `json:"customer" validate:"required"`

	// Surface supplies the anchors payment methods render into and receives
	// UI feedback. Required.
	Surface Surface `json:"-" validate:"required"`

	// ClientMetadata is passed through on session creation.
	ClientMetadata map[string]string `json:"client_metadata,omitempty"`

	// AllowedMethods restricts which provider-reported methods render. An
	// empty list allows every method.
	AllowedMethods []Method `json:"allowed_methods,omitempty"`

	// PaymentMethodOrder places the listed methods first, in order.
	PaymentMethodOrder []Method `json:"payment_method_order,omitempty"`

	// MethodOptions are per-method render-config overrides, applied as the
	// final layer over framework and surface defaults.
	MethodOptions map[Method]map[string]any `json:"method_options,omitempty"`

	// Callback-style alternatives to event registration. Each one is sugar
	// for a listener registered at construction time, before any listener
	// the application adds itself.
	OnSuccess      func(result PaymentResult) `json:"-"`
	OnError        func(err *Error)           `json:"-"`
	OnStatusChange func(next, prev State)     `json:"-"`
	OnDestroy      func()                     `json:"-"`
	OnInitialized  func()                     `json:"-"`
}

// SessionParams configures a low-level session creation.
type SessionParams struct {
	OrgID    string            `json:"org_id,omitempty"`
	PriceID  string            `json:"price_id" validate:"required"`
	Customer Customer          `json:"customer" validate:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client creates checkout instances against one tokenization provider.
type Client struct {
	provider       TokenizationProvider
	loader         ProviderLoader
	logger         *slog.Logger
	sessions       *sessionCache
	backendOpts    []BackendOption
	methodPriority []MethodPriority
	graceWindow    time.Duration
}

// ClientOption customizes a [Client].
type ClientOption func(*Client)

// WithLogger sets the logger used across the client and its checkouts.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProviderLoader sets the loader that makes the provider runtime
// available. The default assumes the provider is already loaded.
func WithProviderLoader(loader ProviderLoader) ClientOption {
	return func(c *Client) {
		if loader != nil {
			c.loader = loader
		}
	}
}

// WithBackendOptions forwards options to every backend client the checkout
// client creates.
func WithBackendOptions(opts ...BackendOption) ClientOption {
	return func(c *Client) {
		c.backendOpts = append(c.backendOpts, opts...)
	}
}

// WithMethodPriority replaces the default wallet suppression rules.
func WithMethodPriority(rules ...MethodPriority) ClientOption {
	return func(c *Client) {
		c.methodPriority = rules
	}
}

// WithProcessingGraceWindow sets how long a not-yet-final payment may stay
// processing before it is reported failed.
func WithProcessingGraceWindow(d time.Duration) ClientOption {
	if d <= 0 {
		panic("checkout: processing grace window must be positive")
	}
	return func(c *Client) {
		c.graceWindow = d
	}
}

// withSessionCache isolates the shared cache in tests.
func withSessionCache(cache *sessionCache) ClientOption {
	return func(c *Client) {
		c.sessions = cache
	}
}

// NewClient builds a [Client] around the injected tokenization provider.
func NewClient(provider TokenizationProvider, opts ...ClientOption) *Client {
	if provider == nil {
		panic("checkout: tokenization provider is required")
	}
	c := &Client{
		provider: provider,
		loader: ProviderLoaderFunc(func(context.Context) error {
			return nil
		}),
		logger:         slog.Default(),
		sessions:       sharedSessions,
		methodPriority: defaultMethodPriority,
		graceWindow:    defaultGraceWindow,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// CreateCheckout creates a checkout instance: it resolves configuration,
// creates or reuses a billing session, initializes the provider, and renders
// every available payment method. On success the instance is ready. On
// failure the error is raised to the caller and also routed through the
// error event, so callback-style integrations observe it too.
func (cl *Client) CreateCheckout(ctx context.Context, opts CheckoutOptions) (*Checkout, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	orgID, err := resolveOrgID(opts.OrgID)
	if err != nil {
		return nil, err
	}

	c := &Checkout{
		Emitter:     emitter.New(emitter.WithLogger(cl.logger)),
		id:          "chk_" + uuid.NewString(),
		client:      cl,
		backend:     cl.newBackend(orgID),
		binding:     newProviderBinding(cl.provider, cl.loader, cl.logger),
		surface:     opts.Surface,
		logger:      cl.logger,
		opts:        opts,
		orgID:       orgID,
		graceWindow: cl.graceWindow,
		state:       StateInitializing,
		priceID:     opts.PriceID,
		fingerprint: sessionFingerprint(orgID, opts.PriceID, opts.Customer.ExternalID, opts.Customer.Email),
	}
	bridgeCallbacks(c, opts)
	bindSurface(c, opts.Surface)

	if err := c.initialize(ctx); err != nil {
		sdkErr := asSDKError(err, ErrorKindProvider)
		// The instance is never handed to the caller, so nobody else can
		// release whatever did come up before the failure.
		c.binding.destroy(ctx)
		c.setState(StateError)
		c.Emit(EventError, sdkErr)
		return nil, sdkErr
	}
	return c, nil
}

// CreateClientSession creates a billing session without rendering any UI,
// for advanced integrations that drive the provider directly. It shares the
// session cache with [Client.CreateCheckout].
func (cl *Client) CreateClientSession(ctx context.Context, params SessionParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	orgID, err := resolveOrgID(params.OrgID)
	if err != nil {
		return nil, err
	}
	backend := cl.newBackend(orgID)
	key := sessionFingerprint(orgID, params.PriceID, params.Customer.ExternalID, params.Customer.Email)
	return cl.sessions.GetOrCreate(key, func() (*Session, error) {
		return backend.CreateSession(ctx, params)
	})
}

func (cl *Client) newBackend(orgID string) *BackendClient {
	opts := []BackendOption{
		WithBaseURL(resolveBaseURL(currentConfig())),
		WithBackendLogger(cl.logger),
	}
	opts = append(opts, cl.backendOpts...)
	return NewBackendClient(orgID, opts...)
}

func resolveOrgID(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if orgID := currentConfig().OrgID; orgID != "" {
		return orgID, nil
	}
	return "", NewConfigurationError("no organization id: set CheckoutOptions.OrgID or call Configure first")
}

// bridgeCallbacks turns each callback option into one event listener. The
// event channel is the single notification path; callbacks are never a
// parallel mechanism.
func bridgeCallbacks(c *Checkout, opts CheckoutOptions) {
	if opts.OnSuccess != nil {
		c.On(EventSuccess, func(args ...any) {
			if result, ok := argAt[PaymentResult](args, 0); ok {
				opts.OnSuccess(result)
			}
		})
	}
	if opts.OnError != nil {
		c.On(EventError, func(args ...any) {
			if err, ok := argAt[*Error](args, 0); ok {
				opts.OnError(err)
			}
		})
	}
	if opts.OnStatusChange != nil {
		c.On(EventStatusChange, func(args ...any) {
			next, okNext := argAt[State](args, 0)
			prev, okPrev := argAt[State](args, 1)
			if okNext && okPrev {
				opts.OnStatusChange(next, prev)
			}
		})
	}
	if opts.OnDestroy != nil {
		c.On(EventDestroy, func(args ...any) {
			opts.OnDestroy()
		})
	}
	if opts.OnInitialized != nil {
		// The first transition is initializing to ready on success, or
		// initializing to error on failure.
		c.Once(EventStatusChange, func(args ...any) {
			if next, ok := argAt[State](args, 0); ok && next == StateReady {
				opts.OnInitialized()
			}
		})
	}
}

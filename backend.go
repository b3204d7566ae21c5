package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL     = "https://billing.embilling.com"
	defaultCallTimeout = 10 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// BackendClient performs session and payment calls against the merchant
// billing backend. Every call is wrapped in a per-attempt timeout and a
// bounded exponential-backoff retry; a request that times out is itself
// retried.
type BackendClient struct {
	orgID       string
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	callTimeout time.Duration
	maxAttempts int
	retryDelay  time.Duration
}

// BackendOption customizes a [BackendClient].
type BackendOption func(*BackendClient)

// WithBaseURL overrides the billing backend base URL.
func WithBaseURL(baseURL string) BackendOption {
	return func(c *BackendClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) BackendOption {
	return func(c *BackendClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCallTimeout sets the per-attempt timeout ceiling.
func WithCallTimeout(d time.Duration) BackendOption {
	if d <= 0 {
		panic("checkout: call timeout must be positive")
	}
	return func(c *BackendClient) {
		c.callTimeout = d
	}
}

// WithRetryPolicy bounds the retry loop: maxAttempts total attempts with
// delays doubling from baseDelay between them.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) BackendOption {
	if maxAttempts < 1 {
		panic("checkout: max attempts must be at least 1")
	}
	return func(c *BackendClient) {
		c.maxAttempts = maxAttempts
		c.retryDelay = baseDelay
	}
}

// WithBackendLogger sets the logger for retry and response diagnostics.
func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(c *BackendClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewBackendClient builds a client scoped to one organization.
func NewBackendClient(orgID string, opts ...BackendOption) *BackendClient {
	c := &BackendClient{
		orgID:       orgID,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{},
		logger:      slog.Default(),
		callTimeout: defaultCallTimeout,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// envelope is the uniform backend response shape: a success or error
// discriminator, a payload, and a backend-assigned request id.
type envelope struct {
	Status    string            `json:"status"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Errors    []envelopeMessage `json:"errors,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type envelopeMessage struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

type sessionData struct {
	ClientToken string `json:"client_token"`
	OrderID     string `json:"order_id"`
}

type paymentData struct {
	CheckoutStatus string `json:"checkout_status"`
	OrderID        string `json:"order_id"`
	TransactionID  string `json:"transaction_id,omitempty"`
	// ClientToken is the fresh credential of an action-required challenge.
	ClientToken string `json:"client_token,omitempty"`
}

type createSessionRequest struct {
	PriceID  string            `json:"price_id"`
	Customer Customer          `json:"customer"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type updateSessionRequest struct {
	OrderID string `json:"order_id"`
	PriceID string `json:"price_id"`
}

type createPaymentRequest struct {
	OrderID      string `json:"order_id"`
	PaymentToken string `json:"payment_token"`
	Method       Method `json:"payment_method"`
}

type resumePaymentRequest struct {
	OrderID     string `json:"order_id"`
	ResumeToken string `json:"resume_token"`
}

// CreateSession creates a billing session for the given price and customer.
func (c *BackendClient) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	data, _, err := c.call(ctx, "sessions", createSessionRequest{
		PriceID:  params.PriceID,
		Customer: params.Customer,
		Metadata: params.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// UpdateSession moves an existing session to a new price.
func (c *BackendClient) UpdateSession(ctx context.Context, orderID, priceID string) (*Session, error) {
	data, _, err := c.call(ctx, "sessions/update", updateSessionRequest{
		OrderID: orderID,
		PriceID: priceID,
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// CreatePayment submits a tokenized payment for the order.
func (c *BackendClient) CreatePayment(ctx context.Context, orderID, paymentToken string, method Method) (*paymentOutcome, error) {
	data, requestID, err := c.call(ctx, "payments", createPaymentRequest{
		OrderID:      orderID,
		PaymentToken: paymentToken,
		Method:       method,
	})
	if err != nil {
		return nil, err
	}
	return interpretPaymentData(data, requestID)
}

// ResumePayment finalizes a payment after an action-required challenge
// resolved on the provider side.
func (c *BackendClient) ResumePayment(ctx context.Context, orderID, resumeToken string) (*paymentOutcome, error) {
	data, requestID, err := c.call(ctx, "payments/resume", resumePaymentRequest{
		OrderID:     orderID,
		ResumeToken: resumeToken,
	})
	if err != nil {
		return nil, err
	}
	return interpretPaymentData(data, requestID)
}

// call runs one backend POST with the client's retry policy. Transport
// failures, timeouts, and retryable HTTP statuses are retried with the delay
// doubling between attempts; a parsed error envelope is final.
func (c *BackendClient) call(ctx context.Context, path string, body any) (json.RawMessage, string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", NewValidationError("encode request body: "+err.Error(), WithCause(err))
	}
	url := fmt.Sprintf("%s/%s/v1/checkout/%s", c.baseURL, c.orgID, path)
	// One key per logical call, not per attempt: a retry of a request that
	// timed out but landed server-side must be deduplicated, not replayed.
	idempotencyKey := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, "", NewNetworkError("request cancelled: "+ctx.Err().Error(), WithCause(ctx.Err()))
			}
		}

		data, requestID, retryable, err := c.attempt(ctx, url, payload, idempotencyKey)
		if err == nil {
			return data, requestID, nil
		}
		if !retryable {
			return nil, "", err
		}
		c.logger.Warn("backend call failed, will retry",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
		lastErr = err
	}
	return nil, "", lastErr
}

// attempt runs a single request under the per-call timeout and reports
// whether its failure may be retried.
func (c *BackendClient) attempt(ctx context.Context, url string, payload []byte, idempotencyKey string) (json.RawMessage, string, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", false, NewNetworkError("build request: "+err.Error(), WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, "", false, NewNetworkError("request cancelled: "+err.Error(), WithCause(err))
		}
		return nil, "", true, NewNetworkError("request failed: "+err.Error(), WithCause(err))
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, "", true, NewNetworkError("read response: "+err.Error(), WithCause(err))
	}

	var env envelope
	if unmarshalErr := json.Unmarshal(respBody, &env); unmarshalErr != nil || env.Status == "" {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, "", retryable, NewBackendError("invalid_response",
			fmt.Sprintf("backend returned status %d with an unreadable body", resp.StatusCode))
	}
	if env.Status != "success" {
		return nil, "", false, normalizeEnvelopeError(env)
	}
	return env.Data, env.RequestID, false, nil
}

// normalizeEnvelopeError maps a backend error envelope onto a *Error: the
// first entry's message and code win, and the request id is attached for
// support traceability.
func normalizeEnvelopeError(env envelope) *Error {
	opts := []errorOption{WithRequestID(env.RequestID)}
	if len(env.Errors) == 0 {
		return NewBackendError("unknown_error", "backend reported an error without details", opts...)
	}
	first := env.Errors[0]
	return NewBackendError(first.Code, first.Message, opts...)
}

func decodeSession(data json.RawMessage) (*Session, error) {
	var payload sessionData
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, NewBackendError("invalid_response", "decode session payload: "+err.Error(), WithCause(err))
	}
	if payload.OrderID == "" || payload.ClientToken == "" {
		return nil, NewBackendError("invalid_response", "session payload is missing order_id or client_token")
	}
	return &Session{OrderID: payload.OrderID, ClientToken: payload.ClientToken}, nil
}

// interpretPaymentData is a pure function of the envelope contents. An
// action-required credential wins over any terminal status; among terminal
// statuses succeeded maps to success, failed and cancelled raise, processing
// maps to the not-yet-final variant, and anything else is unhandled.
func interpretPaymentData(data json.RawMessage, requestID string) (*paymentOutcome, error) {
	var payload paymentData
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, NewBackendError("invalid_response", "decode payment payload: "+err.Error(),
			WithCause(err), WithRequestID(requestID))
	}
	if payload.ClientToken != "" {
		return &paymentOutcome{
			kind:        outcomeActionRequired,
			orderID:     payload.OrderID,
			clientToken: payload.ClientToken,
		}, nil
	}
	switch payload.CheckoutStatus {
	case "succeeded":
		return &paymentOutcome{
			kind:          outcomeSucceeded,
			orderID:       payload.OrderID,
			transactionID: payload.TransactionID,
		}, nil
	case "processing":
		return &paymentOutcome{
			kind:    outcomeProcessing,
			orderID: payload.OrderID,
		}, nil
	case "failed", "cancelled":
		return nil, NewBackendError("payment_"+payload.CheckoutStatus,
			"payment "+payload.CheckoutStatus, WithRequestID(requestID))
	default:
		return nil, NewBackendError(CodeUnhandledStatus,
			fmt.Sprintf("unhandled checkout status %q", payload.CheckoutStatus),
			WithRequestID(requestID))
	}
}

package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateSessionDecodesEnvelope(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.PriceID != "price_monthly" {
			t.Errorf("unexpected price id %q", req.PriceID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"client_token": "tok_a", "order_id": "ord_1"},
		})
	}))
	defer server.Close()

	client := NewBackendClient("org_1", WithBaseURL(server.URL))
	session, err := client.CreateSession(context.Background(), SessionParams{
		PriceID:  "price_monthly",
		Customer: Customer{ExternalID: "user_1", Email: "user_1@test.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.OrderID != "ord_1" || session.ClientToken != "tok_a" {
		t.Fatalf("unexpected session %+v", session)
	}
	if gotPath != "/org_1/v1/checkout/sessions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestErrorEnvelopeIsNormalizedAndFinal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "error",
			"request_id": "req_42",
			"errors": []map[string]string{
				{"message": "purchase already in progress", "code": "double_purchase", "type": "conflict"},
				{"message": "second entry is ignored", "code": "other", "type": "conflict"},
			},
		})
	}))
	defer server.Close()

	client := NewBackendClient("org_1", WithBaseURL(server.URL))
	_, err := client.CreatePayment(context.Background(), "ord_1", "tok", MethodCard)
	if err == nil {
		t.Fatal("expected error")
	}
	var sdkErr *Error
	if !errors.As(err, &sdkErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if sdkErr.Kind != ErrorKindBackendAPI {
		t.Fatalf("unexpected kind %q", sdkErr.Kind)
	}
	if sdkErr.Code != CodeDoublePurchase {
		t.Fatalf("unexpected code %q", sdkErr.Code)
	}
	if sdkErr.Message != "purchase already in progress" {
		t.Fatalf("unexpected message %q", sdkErr.Message)
	}
	if sdkErr.RequestID != "req_42" {
		t.Fatalf("request id not attached: %+v", sdkErr)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("error envelopes must not be retried, got %d calls", got)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"client_token": "tok_a", "order_id": "ord_1"},
		})
	}))
	defer server.Close()

	client := NewBackendClient("org_1",
		WithBaseURL(server.URL),
		WithRetryPolicy(3, time.Millisecond))
	session, err := client.CreateSession(context.Background(), SessionParams{
		PriceID:  "price_monthly",
		Customer: Customer{ExternalID: "user_1", Email: "user_1@test.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.OrderID != "ord_1" {
		t.Fatalf("unexpected session %+v", session)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestRetriesReuseTheIdempotencyKey(t *testing.T) {
	t.Parallel()

	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if len(keys) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"checkout_status": "succeeded", "order_id": "ord_1"},
		})
	}))
	defer server.Close()

	client := NewBackendClient("org_1",
		WithBaseURL(server.URL),
		WithRetryPolicy(3, time.Millisecond))
	if _, err := client.CreatePayment(context.Background(), "ord_1", "tok", MethodCard); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(keys))
	}
	if keys[0] == "" {
		t.Fatal("idempotency key not set")
	}
	if keys[0] != keys[1] {
		t.Fatalf("idempotency key changed across retries of one call: %q vs %q", keys[0], keys[1])
	}

	// A separate logical call gets its own key.
	if _, err := client.CreatePayment(context.Background(), "ord_1", "tok", MethodCard); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keys[2] == keys[0] {
		t.Fatal("distinct calls must not share an idempotency key")
	}
}

func TestTimedOutRequestsAreRetriedThenFail(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	client := NewBackendClient("org_1",
		WithBaseURL(server.URL),
		WithCallTimeout(10*time.Millisecond),
		WithRetryPolicy(2, time.Millisecond))
	_, err := client.CreateSession(context.Background(), SessionParams{
		PriceID:  "price_monthly",
		Customer: Customer{ExternalID: "user_1", Email: "user_1@test.com"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != ErrorKindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected the whole request+timeout unit to be retried, got %d calls", got)
	}
}

func TestInterpretPaymentData(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload      map[string]any
		wantKind     outcomeKind
		wantErrCode  string
		wantToken    string
		wantTransact string
	}{
		"succeeded": {
			payload:      map[string]any{"checkout_status": "succeeded", "order_id": "ord_1", "transaction_id": "tx_9"},
			wantKind:     outcomeSucceeded,
			wantTransact: "tx_9",
		},
		"processing": {
			payload:  map[string]any{"checkout_status": "processing", "order_id": "ord_1"},
			wantKind: outcomeProcessing,
		},
		"action token wins over terminal status": {
			payload:   map[string]any{"checkout_status": "succeeded", "order_id": "ord_1", "client_token": "tok_next"},
			wantKind:  outcomeActionRequired,
			wantToken: "tok_next",
		},
		"failed raises": {
			payload:     map[string]any{"checkout_status": "failed", "order_id": "ord_1"},
			wantErrCode: "payment_failed",
		},
		"cancelled raises": {
			payload:     map[string]any{"checkout_status": "cancelled", "order_id": "ord_1"},
			wantErrCode: "payment_cancelled",
		},
		"unknown status raises unhandled": {
			payload:     map[string]any{"checkout_status": "telepathic", "order_id": "ord_1"},
			wantErrCode: CodeUnhandledStatus,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			raw, err := json.Marshal(tc.payload)
			if err != nil {
				t.Fatal(err)
			}
			outcome, err := interpretPaymentData(raw, "req_1")
			if tc.wantErrCode != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if CodeOf(err) != tc.wantErrCode {
					t.Fatalf("unexpected code %q", CodeOf(err))
				}
				var sdkErr *Error
				if errors.As(err, &sdkErr) && sdkErr.RequestID != "req_1" {
					t.Fatalf("request id not attached: %+v", sdkErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome.kind != tc.wantKind {
				t.Fatalf("unexpected kind %d", outcome.kind)
			}
			if outcome.clientToken != tc.wantToken {
				t.Fatalf("unexpected token %q", outcome.clientToken)
			}
			if outcome.transactionID != tc.wantTransact {
				t.Fatalf("unexpected transaction id %q", outcome.transactionID)
			}
		})
	}
}

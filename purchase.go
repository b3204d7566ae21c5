package checkout

import (
	"context"
	"log/slog"
	"time"
)

// methodHooks builds the callbacks a rendered payment method invokes. Every
// purchase enters the state machine through these, never through application
// code directly.
func (c *Checkout) methodHooks(method Method) MethodHooks {
	return MethodHooks{
		OnTokenized: c.handleTokenized,
		OnResumed:   c.handleResumed,
		OnCancelled: func() {
			c.handleCancelled(method)
		},
		OnFieldError: func(field, message string) {
			c.Emit(EventInputError, field, message)
		},
	}
}

// handleTokenized runs the initial payment attempt from a provider token.
// The returned error is the provider's failure signal; nil tells the
// provider to finalize its own UI state.
func (c *Checkout) handleTokenized(ctx context.Context, payload TokenPayload) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return NewLifecycleError("checkout is destroyed")
	}
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return NewLifecycleError("cannot start a purchase in state " + state.String())
	}
	// The gate and the transition share one critical section so concurrent
	// submits cannot both pass through the ready state.
	prev := c.state
	c.state = StateProcessing
	c.generation++
	generation := c.generation
	orderID := c.orderID
	c.mu.Unlock()

	c.Emit(EventStatusChange, StateProcessing, prev)
	c.Emit(EventStartPurchase, payload.Method)
	done := c.beginWork()
	defer done()

	outcome, err := c.backend.CreatePayment(ctx, orderID, payload.Token, payload.Method)
	return c.applyOutcome(ctx, generation, outcome, err)
}

// handleResumed finalizes a payment after the provider resolved an
// action-required challenge. It branches exactly like the tokenize path,
// through the resume-specific backend call.
func (c *Checkout) handleResumed(ctx context.Context, payload TokenPayload) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return NewLifecycleError("checkout is destroyed")
	}
	if c.state != StateActionRequired {
		state := c.state
		c.mu.Unlock()
		return NewLifecycleError("cannot resume a purchase in state " + state.String())
	}
	prev := c.state
	c.state = StateProcessing
	generation := c.generation
	orderID := c.orderID
	c.mu.Unlock()

	c.Emit(EventStatusChange, StateProcessing, prev)
	done := c.beginWork()
	defer done()

	outcome, err := c.backend.ResumePayment(ctx, orderID, payload.Token)
	return c.applyOutcome(ctx, generation, outcome, err)
}

// handleCancelled reports a buyer deselecting a payment method. When no
// backend call for the attempt was ever started this is a cancellation, not
// a failure, and must not be confused with one in observability. Only a
// ready instance can have a purchase to cancel; a deselect after completion
// or teardown is silent.
func (c *Checkout) handleCancelled(method Method) {
	c.mu.Lock()
	ready := c.state == StateReady && !c.destroyed
	c.mu.Unlock()
	if !ready {
		return
	}
	c.Emit(EventPurchaseCancelled, method)
}

// applyOutcome translates a backend payment result into state transitions
// and events. Results from a superseded attempt are ignored.
func (c *Checkout) applyOutcome(ctx context.Context, generation uint64, outcome *paymentOutcome, err error) error {
	if c.stale(generation) {
		// Discarded, but not a success: the provider must reset its UI, not
		// finalize it.
		c.logger.Debug("ignoring stale payment result", slog.String("checkout_id", c.id))
		return NewLifecycleError("payment attempt superseded")
	}
	if err != nil {
		sdkErr := asSDKError(err, ErrorKindBackendAPI)
		c.failPurchase(sdkErr)
		return sdkErr
	}

	switch outcome.kind {
	case outcomeSucceeded:
		c.mu.Lock()
		if outcome.orderID != "" {
			c.orderID = outcome.orderID
		}
		orderID := c.orderID
		c.mu.Unlock()
		result := PaymentResult{
			OrderID:       orderID,
			Status:        "succeeded",
			TransactionID: outcome.transactionID,
		}
		c.setState(StateCompleted)
		c.Emit(EventPurchaseCompleted, result)
		c.Emit(EventSuccess, result)
		return nil

	case outcomeActionRequired:
		// The fresh credential replaces the stored one and the provider
		// continues the challenge; it decides when the challenge resolves
		// and then invokes the resume hook.
		c.mu.Lock()
		c.clientToken = outcome.clientToken
		if outcome.orderID != "" {
			c.orderID = outcome.orderID
		}
		c.mu.Unlock()
		c.setState(StateActionRequired)

		session, sessionErr := c.binding.current()
		if sessionErr != nil {
			sdkErr := asSDKError(sessionErr, ErrorKindProvider)
			c.failPurchase(sdkErr)
			return sdkErr
		}
		if challengeErr := session.ContinueChallenge(ctx, outcome.clientToken); challengeErr != nil {
			sdkErr := asSDKError(challengeErr, ErrorKindProvider)
			c.failPurchase(sdkErr)
			return sdkErr
		}
		return nil

	case outcomeProcessing:
		return c.escalateProcessing(ctx, generation)

	default:
		sdkErr := NewBackendError(CodeUnhandledStatus, "unhandled payment outcome")
		c.failPurchase(sdkErr)
		return sdkErr
	}
}

// escalateProcessing handles a payment that is not yet final. After a fixed
// grace window the attempt is reported failed so the buyer retries or checks
// back later. This is a timer-based escalation, a known soft edge case, not
// a hard error.
func (c *Checkout) escalateProcessing(ctx context.Context, generation uint64) error {
	timer := time.NewTimer(c.graceWindow)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	if c.stale(generation) {
		return NewLifecycleError("payment attempt superseded")
	}
	sdkErr := NewBackendError(CodePaymentProcessing,
		"payment is still processing; check back later for the final status")
	c.failPurchase(sdkErr)
	return sdkErr
}

// failPurchase returns the instance to ready and reports the failure. The
// checkout deliberately does not enter the error state here: the buyer keeps
// the ability to retry.
func (c *Checkout) failPurchase(failure *Error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(StateReady)
	c.Emit(EventPurchaseFailure, failure)
}

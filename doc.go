// Package checkout is a headless checkout orchestration SDK. It sits between
// an embedding application, a merchant billing backend, and an external
// payment-tokenization provider: it creates billing sessions, renders payment
// methods through the provider, submits tokenized payment data, follows
// action-required challenge flows to completion, and exposes a uniform
// lifecycle and event model to the embedding application.
//
// # Creating a checkout
//
// Call [Configure] once with your organization defaults, build a [Client]
// with your [TokenizationProvider] implementation, then call
// [Client.CreateCheckout]. The returned [Checkout] starts in the ready state
// with every available payment method rendered into the anchors supplied by
// your [Surface]. Subscribe to lifecycle events with [Checkout.On], or pass
// the callback fields on [CheckoutOptions]. Callbacks are sugar for event
// listeners registered at construction, never a separate notification path.
//
// # Payment flow
//
// The provider invokes the SDK when the buyer submits a payment method. The
// SDK creates the payment against the billing backend, interprets the result,
// and either completes the checkout, continues an action-required challenge
// through the provider, or returns the instance to ready and reports a
// purchase failure so the buyer can retry. The checkout instance never enters
// a dead state because a single payment attempt failed.
//
// # Advanced integrations
//
// [Client.CreateClientSession] creates a billing session without rendering
// any UI, for integrations that drive the tokenization provider directly.
package checkout

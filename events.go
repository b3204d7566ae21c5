package checkout

// Event names delivered through a checkout instance's event channel.
//
// Payload conventions: error-carrying events pass a single *Error argument;
// EventStatusChange passes (new State, previous State); EventSuccess and
// EventPurchaseCompleted pass a PaymentResult; EventInputError passes
// (field string, message string); EventLoaderChange passes a bool;
// method-scoped events pass the Method first.
const (
	// EventSuccess fires exactly once, when a payment reaches a final
	// succeeded status.
	EventSuccess = "success"

	// EventError fires for initialization and price-update failures, after
	// the instance transitioned to the error state.
	EventError = "error"

	// EventStatusChange fires synchronously with every state transition.
	EventStatusChange = "status-change"

	// EventDestroy fires once, after teardown completes and before the
	// instance's listeners are removed.
	EventDestroy = "destroy"

	// EventInputError fires per offending card field with the field name
	// and a human-readable message.
	EventInputError = "input-error"

	// EventLoaderChange fires with the aggregated loading signal: true when
	// the first concurrent operation starts, false when the last one ends.
	EventLoaderChange = "loader-change"

	// EventMethodRender fires when a payment method's UI finished rendering.
	EventMethodRender = "method-render"

	// EventMethodRenderError fires when rendering a payment method failed.
	EventMethodRenderError = "method-render-error"

	// EventStartPurchase fires when the buyer submits a payment method,
	// before any backend call.
	EventStartPurchase = "start-purchase"

	// EventPurchaseFailure fires when a payment attempt fails softly; the
	// instance returns to ready and the buyer may retry.
	EventPurchaseFailure = "purchase-failure"

	// EventPurchaseCompleted fires alongside EventSuccess with the final
	// payment result.
	EventPurchaseCompleted = "purchase-completed"

	// EventPurchaseCancelled fires when the buyer deselects a payment
	// method before any backend call for it was started. Distinct from
	// EventPurchaseFailure for observability: nothing failed.
	EventPurchaseCancelled = "purchase-cancelled"

	// EventMethodsAvailable fires once per initialization with the filtered
	// set of payment methods that will be rendered.
	EventMethodsAvailable = "methods-available"
)

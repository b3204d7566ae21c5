package checkout

// State identifies where a checkout instance is in its lifecycle.
type State string

const (
	StateInitializing   State = "initializing"
	StateReady          State = "ready"
	StateUpdating       State = "updating"
	StateProcessing     State = "processing"
	StateActionRequired State = "action_required"
	StateCompleted      State = "completed"
	StateError          State = "error"
	StateDestroyed      State = "destroyed"
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	return string(s)
}

// inFlight reports whether a payment attempt is underway. The action
// required state counts: it is an in-flight challenge, not idle.
func (s State) inFlight() bool {
	return s == StateProcessing || s == StateActionRequired
}

// Method tags a payment method the tokenization provider can render.
type Method string

const (
	MethodCard      Method = "card"
	MethodApplePay  Method = "apple_pay"
	MethodGooglePay Method = "google_pay"
	MethodPayPal    Method = "paypal"
)

// Customer identifies the buyer on the merchant's side.
type Customer struct {
	ExternalID  string `json:"external_id" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	CountryCode string `json:"country_code,omitempty" validate:"omitempty,len=2,uppercase"`
}

// Session is the result of a backend session creation: the order the
// checkout is attached to and the credential the tokenization provider
// continues with.
type Session struct {
	OrderID     string `json:"order_id"`
	ClientToken string `json:"client_token"`
}

// PaymentResult is the payload of EventSuccess and EventPurchaseCompleted.
type PaymentResult struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Status is the snapshot returned by [Checkout.Status].
type Status struct {
	ID          string `json:"id"`
	State       State  `json:"state"`
	OrderID     string `json:"order_id,omitempty"`
	PriceID     string `json:"price_id"`
	IsDestroyed bool   `json:"is_destroyed"`
}

// paymentOutcome is the discriminated result of interpreting a backend
// payment or resume response. Failure is not a variant; it is returned as an
// error by the backend client.
type paymentOutcome struct {
	kind          outcomeKind
	orderID       string
	clientToken   string // set on action-required outcomes
	transactionID string
}

type outcomeKind int

const (
	outcomeSucceeded outcomeKind = iota
	outcomeActionRequired
	outcomeProcessing
)

package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/money"
)

// Attempt is a single run of the checkout flow, identified by its idempotency key.
type Attempt struct {
	ID             string
	UserID         string
	IdempotencyKey string
	State          CheckoutState
	TotalAmount    money.Cents
	Currency       string
	Resolution     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Advance moves the attempt to next, rejecting transitions the state machine
// does not allow.
func (a *Attempt) Advance(next CheckoutState) error {
	from := a.State.Status()
	if !CanTransitionTo(from, next.Status()) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, next.Status())
	}
	a.State = next
	return nil
}

// LineItem is what the payment provider receives for one cart line.
type LineItem struct {
	ProductName        string      `json:"product_name"`
	ProductDescription string      `json:"product_description"`
	PriceInCents       money.Cents `json:"price_in_cents"`
	Quantity           int         `json:"quantity"`
	Currency           string      `json:"currency"`
}

type SessionRequest struct {
	Items          []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	ClientRef      string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SessionStatus is the resolved outcome of a provider session:
// SessionCompleted or SessionFailed.
type SessionStatus interface {
	isSessionStatus()
}

type SessionCompleted struct {
	CallerPrincipal  string
	HasCaller        bool
	ProviderResponse string
}

// Caller returns the principal the session was created for, when the provider echoed one.
func (s SessionCompleted) Caller() (string, bool) {
	return s.CallerPrincipal, s.HasCaller
}

type SessionFailed struct {
	Error string
}

func (SessionCompleted) isSessionStatus() {}
func (SessionFailed) isSessionStatus()    {}

const EventCheckoutPaid = "checkout_paid"

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// CheckoutPaid is the payload of an EventCheckoutPaid outbox event.
type CheckoutPaid struct {
	AttemptID   string      `json:"attempt_id"`
	UserID      string      `json:"user_id"`
	SessionID   string      `json:"session_id"`
	TotalAmount money.Cents `json:"total_amount"`
	Currency    string      `json:"currency"`
	PaidAt      time.Time   `json:"paid_at"`
}

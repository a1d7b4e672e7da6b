package stripe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event types this service cares about. Everything else is acknowledged
// and ignored at the handler level.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.paid"
	EventChargeRefunded    = "charge.refunded"
)

// Event is the envelope of a Stripe webhook payload.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession carries the fields reconciliation extracts from a
// completed checkout session or paid invoice.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"` // minor units
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email"`
	Mode          string            `json:"mode"` // "payment" or "subscription"
	Metadata      map[string]string `json:"metadata"`
}

// Invoice carries the fields reconciliation extracts from a paid
// subscription invoice. Invoices use amount_paid, not amount_total,
// and surface the subscription's metadata under subscription_details.
type Invoice struct {
	ID                  string `json:"id"`
	PaymentIntent       string `json:"payment_intent"`
	AmountPaid          int64  `json:"amount_paid"` // minor units
	Currency            string `json:"currency"`
	CustomerEmail       string `json:"customer_email"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// Charge is the subset of a charge object needed for refund handling.
type Charge struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Refunded      bool   `json:"refunded"`
}

// ParseEvent decodes a webhook body into its envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse stripe event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("stripe event missing type")
	}
	return &ev, nil
}

// Session decodes the event object as a checkout session.
func (e *Event) Session() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("checkout session missing id")
	}
	return &s, nil
}

// Invoice decodes the event object as an invoice.
func (e *Event) Invoice() (*Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal(e.Data.Object, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invoice: %w", err)
	}
	if inv.ID == "" {
		return nil, fmt.Errorf("invoice missing id")
	}
	return &inv, nil
}

// Refund decodes the event object as a charge for refund events.
func (e *Event) Refund() (*Charge, error) {
	var c Charge
	if err := json.Unmarshal(e.Data.Object, &c); err != nil {
		return nil, fmt.Errorf("failed to parse charge: %w", err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("charge missing id")
	}
	return &c, nil
}

// TransactionID returns the provider-scoped transaction id for a session.
// The payment intent is stable across retries; the session id is the
// fallback for subscription invoices that carry no intent.
func (s *CheckoutSession) TransactionID() string {
	if s.PaymentIntent != "" {
		return s.PaymentIntent
	}
	return s.ID
}

// Amount converts minor units to a decimal amount.
func (s *CheckoutSession) Amount() float64 {
	return float64(s.AmountTotal) / 100
}

// MetaString returns a metadata value, trimmed.
func (s *CheckoutSession) MetaString(key string) string {
	return metaString(s.Metadata, key)
}

// MetaInt returns a metadata value parsed as int, zero when absent or bad.
func (s *CheckoutSession) MetaInt(key string) int {
	return metaInt(s.Metadata, key)
}

// MetaInt64 returns a metadata value parsed as int64, zero when absent or bad.
func (s *CheckoutSession) MetaInt64(key string) int64 {
	return metaInt64(s.Metadata, key)
}

// TransactionID returns the provider-scoped transaction id for an
// invoice. Same precedence as sessions: payment intent, then object id.
func (inv *Invoice) TransactionID() string {
	if inv.PaymentIntent != "" {
		return inv.PaymentIntent
	}
	return inv.ID
}

// Amount converts minor units to a decimal amount.
func (inv *Invoice) Amount() float64 {
	return float64(inv.AmountPaid) / 100
}

// MetaString returns a subscription metadata value, trimmed.
func (inv *Invoice) MetaString(key string) string {
	return metaString(inv.SubscriptionDetails.Metadata, key)
}

// MetaInt returns a subscription metadata value parsed as int.
func (inv *Invoice) MetaInt(key string) int {
	return metaInt(inv.SubscriptionDetails.Metadata, key)
}

// MetaInt64 returns a subscription metadata value parsed as int64.
func (inv *Invoice) MetaInt64(key string) int64 {
	return metaInt64(inv.SubscriptionDetails.Metadata, key)
}

func metaString(m map[string]string, key string) string {
	return strings.TrimSpace(m[key])
}

func metaInt(m map[string]string, key string) int {
	v, err := strconv.Atoi(metaString(m, key))
	if err != nil {
		return 0
	}
	return v
}

func metaInt64(m map[string]string, key string) int64 {
	v, err := strconv.ParseInt(metaString(m, key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

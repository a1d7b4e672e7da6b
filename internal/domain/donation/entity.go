package donation

import (
	"database/sql"
	"strings"
	"time"
)

// Provider represents a payment provider
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderMidtrans Provider = "midtrans"
	ProviderKofi     Provider = "kofi"
)

// AmountMatched reports whether the provider derives tier and day count
// from the paid amount instead of a pre-selected tier. Ko-fi has no
// product selection; card checkouts do.
func (p Provider) AmountMatched() bool {
	return p == ProviderKofi
}

// Valid reports whether the provider is known.
func (p Provider) Valid() bool {
	switch p {
	case ProviderStripe, ProviderMidtrans, ProviderKofi:
		return true
	}
	return false
}

// Kind represents the payment kind
type Kind string

const (
	KindOneTime             Kind = "one_time"
	KindSubscriptionInitial Kind = "subscription_initial"
	KindSubscriptionRenewal Kind = "subscription_renewal"
)

// Status represents ledger entry status
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
	StatusFailed    Status = "failed"
)

// Donation is one immutable ledger entry (matches donations table).
// Created exactly once per (provider, transaction_id); after creation
// only the status may move, driven by explicit refund events.
type Donation struct {
	ID            int64          `db:"id" json:"id"`
	AccountID     sql.NullInt64  `db:"account_id" json:"account_id,omitempty"` // NULL = guest
	Amount        float64        `db:"amount" json:"amount"`
	Currency      string         `db:"currency" json:"currency"`
	Status        Status         `db:"status" json:"status"`
	Provider      Provider       `db:"provider" json:"provider"`
	TransactionID string         `db:"transaction_id" json:"transaction_id"`
	RankID        sql.NullString `db:"rank_id" json:"rank_id,omitempty"`
	Days          sql.NullInt64  `db:"days" json:"days,omitempty"`
	Kind          Kind           `db:"kind" json:"kind"`
	Note          sql.NullString `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// IsGuest reports whether the payer could not be resolved to an account.
func (d *Donation) IsGuest() bool {
	return !d.AccountID.Valid
}

// PaymentEvent is the normalized, verified notification a provider
// adapter hands to the reconciliation core. Never persisted as-is.
type PaymentEvent struct {
	Provider      Provider `json:"provider" validate:"required,provider"`
	TransactionID string   `json:"transaction_id" validate:"required"`
	Amount        float64  `json:"amount" validate:"required,gt=0"`
	Currency      string   `json:"currency" validate:"required,len=3"`
	Kind          Kind     `json:"kind" validate:"payment_kind"`

	// Pre-selected entitlement (card checkouts)
	RankID string `json:"rank_id,omitempty"`
	Days   int    `json:"days,omitempty"`

	// Identity hints, in resolution priority order
	AccountID int64  `json:"account_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Normalize trims free-text fields and lowercases the rank id.
func (e *PaymentEvent) Normalize() {
	e.TransactionID = strings.TrimSpace(e.TransactionID)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	e.RankID = strings.ToLower(strings.TrimSpace(e.RankID))
	e.Email = strings.TrimSpace(e.Email)
	e.Name = strings.TrimSpace(e.Name)
	e.Message = strings.TrimSpace(e.Message)
	if e.Kind == "" {
		e.Kind = KindOneTime
	}
}

package kofi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payment types Ko-fi sends in the "type" field.
const (
	TypeDonation     = "Donation"
	TypeSubscription = "Subscription"
	TypeShopOrder    = "Shop Order"
)

// Payload represents the JSON Ko-fi posts in the form-encoded "data" field.
type Payload struct {
	VerificationToken          string `json:"verification_token"`
	MessageID                  string `json:"message_id"`
	KofiTransactionID          string `json:"kofi_transaction_id"`
	Type                       string `json:"type"`
	FromName                   string `json:"from_name"`
	Message                    string `json:"message"`
	Amount                     string `json:"amount"`
	Currency                   string `json:"currency"`
	Email                      string `json:"email"`
	IsPublic                   bool   `json:"is_public"`
	IsSubscriptionPayment      bool   `json:"is_subscription_payment"`
	IsFirstSubscriptionPayment bool   `json:"is_first_subscription_payment"`
}

// ParsePayload decodes the "data" form field.
func ParsePayload(data string) (*Payload, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("empty kofi payload")
	}
	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to parse kofi payload: %w", err)
	}
	if p.KofiTransactionID == "" {
		return nil, fmt.Errorf("kofi payload missing transaction id")
	}
	return &p, nil
}

// VerifyToken checks the shared verification token from the Ko-fi dashboard.
func (p *Payload) VerifyToken(expected string) bool {
	if expected == "" || p.VerificationToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.VerificationToken), []byte(expected)) == 1
}

// ParsedAmount returns the decimal amount, zero when unparseable.
func (p *Payload) ParsedAmount() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Amount), 64)
	if err != nil {
		return 0
	}
	return v
}

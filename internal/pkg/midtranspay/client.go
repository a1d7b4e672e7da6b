package midtranspay

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

// Status is the subset of a Midtrans transaction status the
// reconciliation core consumes after re-verification.
type Status struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	Amount            float64
	Currency          string
}

// Settled reports whether the transaction reached a final paid state.
func (s *Status) Settled() bool {
	return s.TransactionStatus == "settlement" || s.TransactionStatus == "capture"
}

// Refunded reports whether the transaction was refunded.
func (s *Status) Refunded() bool {
	return s.TransactionStatus == "refund" || s.TransactionStatus == "partial_refund"
}

// Checker re-verifies webhook notifications against the Midtrans Core API.
// Notifications are untrusted until CheckTransaction confirms them.
type Checker interface {
	CheckTransaction(orderID string) (*Status, error)
}

type checker struct {
	client coreapi.Client
}

// NewChecker creates a Core API backed checker.
func NewChecker(serverKey string, production bool) Checker {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var c coreapi.Client
	c.New(serverKey, env)

	return &checker{client: c}
}

func (c *checker) CheckTransaction(orderID string) (*Status, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("empty order id")
	}

	resp, err := c.client.CheckTransaction(orderID)
	if resp == nil {
		return nil, fmt.Errorf("midtrans check transaction failed: %v", err)
	}

	amount, parseErr := strconv.ParseFloat(resp.GrossAmount, 64)
	if parseErr != nil {
		return nil, fmt.Errorf("invalid gross amount %q: %w", resp.GrossAmount, parseErr)
	}

	return &Status{
		OrderID:           resp.OrderID,
		TransactionID:     resp.TransactionID,
		TransactionStatus: resp.TransactionStatus,
		Amount:            amount,
		Currency:          resp.Currency,
	}, nil
}

package donation

// MidtransNotification is the webhook body Midtrans posts. Only the
// order id is trusted from it; amount and status are re-read from the
// Midtrans API before anything is recorded.
type MidtransNotification struct {
	OrderID           string `json:"order_id" validate:"required"`
	TransactionStatus string `json:"transaction_status"`
	// Custom fields set at checkout time carry the entitlement selection.
	CustomField1 string `json:"custom_field1"` // rank tier id
	CustomField2 string `json:"custom_field2"` // day count
	CustomField3 string `json:"custom_field3"` // platform account id
}

// ConvertRankRequest is the admin rank-conversion body.
type ConvertRankRequest struct {
	RankID string `json:"rank_id" validate:"required"`
}

// ExportRequest is the admin ledger-export body. Dates are inclusive
// start, exclusive end, formatted 2006-01-02.
type ExportRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// ExportResponse reports where the export landed.
type ExportResponse struct {
	Key string `json:"key"`
}

// DonationView is the public shape of a ledger entry. Identity and
// transaction details stay internal.
type DonationView struct {
	DonorName string  `json:"donor_name"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	RankID    string  `json:"rank_id,omitempty"`
	Message   string  `json:"message,omitempty"`
	CreatedAt string  `json:"created_at"`
}

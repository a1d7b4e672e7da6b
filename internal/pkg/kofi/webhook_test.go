package kofi

import "testing"

const sampleData = `{
	"verification_token": "tok-123",
	"message_id": "m-1",
	"kofi_transaction_id": "kofi-tx-900",
	"type": "Donation",
	"from_name": "Steve",
	"message": "Steve keep it up",
	"amount": "5.00",
	"currency": "USD",
	"email": "steve@example.com",
	"is_public": true,
	"is_subscription_payment": false,
	"is_first_subscription_payment": false
}`

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload(sampleData)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.KofiTransactionID != "kofi-tx-900" {
		t.Fatalf("unexpected transaction id %q", p.KofiTransactionID)
	}
	if p.Type != TypeDonation {
		t.Fatalf("unexpected type %q", p.Type)
	}
	if p.ParsedAmount() != 5.00 {
		t.Fatalf("expected amount 5.00, got %v", p.ParsedAmount())
	}
}

func TestParsePayloadRejectsMissingTransactionID(t *testing.T) {
	if _, err := ParsePayload(`{"verification_token":"tok"}`); err == nil {
		t.Fatal("expected error for payload without transaction id")
	}
	if _, err := ParsePayload(""); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestVerifyToken(t *testing.T) {
	p, err := ParsePayload(sampleData)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if !p.VerifyToken("tok-123") {
		t.Fatal("expected token to verify")
	}
	if p.VerifyToken("tok-456") {
		t.Fatal("did not expect wrong token to verify")
	}
	if p.VerifyToken("") {
		t.Fatal("did not expect empty expected token to verify")
	}
}

func TestParsedAmountBadInput(t *testing.T) {
	p := &Payload{Amount: "five"}
	if p.ParsedAmount() != 0 {
		t.Fatalf("expected 0 for unparseable amount, got %v", p.ParsedAmount())
	}
}

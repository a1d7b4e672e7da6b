package stripe

import (
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func signedHeader(t *testing.T, payload []byte, at time.Time) string {
	t.Helper()
	sig := ComputeSignature(at, payload, testSecret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), sig)
}

func TestVerifySignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Unix(1700000000, 0)

	header := signedHeader(t, payload, now)
	if err := VerifySignature(payload, header, testSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)

	header := signedHeader(t, payload, now)
	if err := VerifySignature(payload, header, "whsec_other", DefaultTolerance, now); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"amount":500}`)
	now := time.Unix(1700000000, 0)

	header := signedHeader(t, payload, now)
	if err := VerifySignature([]byte(`{"amount":9999}`), header, testSecret, DefaultTolerance, now); err == nil {
		t.Fatal("expected tampered payload to fail")
	}
}

func TestVerifySignatureOutsideTolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signedAt := time.Unix(1700000000, 0)
	now := signedAt.Add(10 * time.Minute)

	header := signedHeader(t, payload, signedAt)
	if err := VerifySignature(payload, header, testSecret, DefaultTolerance, now); err == nil {
		t.Fatal("expected stale signature to fail")
	}
}

func TestVerifySignatureSecondV1Matches(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)

	good := ComputeSignature(now, payload, testSecret)
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), "deadbeef", good)
	if err := VerifySignature(payload, header, testSecret, DefaultTolerance, now); err != nil {
		t.Fatalf("expected second v1 signature to match, got %v", err)
	}
}

func TestParseSignatureHeaderMalformed(t *testing.T) {
	cases := []string{
		"",
		"t=notanumber,v1=abc",
		"v1=abc",
		"t=1700000000",
	}
	for _, header := range cases {
		if _, err := ParseSignatureHeader(header); err == nil {
			t.Fatalf("expected parse error for %q", header)
		}
	}
}

func TestParseEventAndSession(t *testing.T) {
	body := []byte(`{
		"id": "evt_42",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": "pi_1",
			"amount_total": 1250,
			"currency": "usd",
			"customer_email": "player@example.com",
			"mode": "payment",
			"metadata": {"rank_id": "patron", "days": "30", "account_id": "77"}
		}}
	}`)

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventCheckoutCompleted {
		t.Fatalf("unexpected type %q", ev.Type)
	}

	s, err := ev.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.TransactionID() != "pi_1" {
		t.Fatalf("expected payment intent as transaction id, got %q", s.TransactionID())
	}
	if s.Amount() != 12.50 {
		t.Fatalf("expected 12.50, got %v", s.Amount())
	}
	if s.MetaString("rank_id") != "patron" || s.MetaInt("days") != 30 || s.MetaInt64("account_id") != 77 {
		t.Fatalf("metadata extraction failed: %+v", s.Metadata)
	}
}

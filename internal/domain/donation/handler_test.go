package donation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/craftvale/craftvale-api/internal/pkg/midtranspay"
	"github.com/craftvale/craftvale-api/internal/pkg/stripe"
)

const testKofiToken = "kofi-secret"

type checkerStub struct {
	status *midtranspay.Status
	err    error
}

func (c *checkerStub) CheckTransaction(string) (*midtranspay.Status, error) {
	return c.status, c.err
}

func newTestHandler(checker midtranspay.Checker) (*Handler, *ledgerStub, *accountStub) {
	accounts := &accountStub{}
	ledger := newLedgerStub()
	svc := NewService(ledger, accounts, testCatalog(), NewResolver(accounts), nil, nil, nil)
	h := NewHandler(svc, testCatalog(), nil, "whsec_test", checker, testKofiToken)
	return h, ledger, accounts
}

func postKofi(h *Handler, data string) *httptest.ResponseRecorder {
	form := url.Values{"data": {data}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/kofi", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.KofiWebhook(rr, req)
	return rr
}

func TestKofiWebhookAccepts(t *testing.T) {
	h, ledger, _ := newTestHandler(nil)

	rr := postKofi(h, `{"verification_token":"`+testKofiToken+`","kofi_transaction_id":"kofi_1","type":"Donation","from_name":"Jo","amount":"12.00","currency":"USD"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	d, _ := ledger.GetByTransactionID(context.Background(), ProviderKofi, "kofi_1")
	if d == nil || d.Amount != 12 {
		t.Fatalf("expected ledger entry, got %+v", d)
	}
}

func TestKofiWebhookRejectsBadToken(t *testing.T) {
	h, ledger, _ := newTestHandler(nil)

	rr := postKofi(h, `{"verification_token":"wrong","kofi_transaction_id":"kofi_2","type":"Donation","amount":"5.00","currency":"USD"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if n, _ := ledger.Count(context.Background()); n != 0 {
		t.Fatal("rejected webhook must not write the ledger")
	}
}

func TestKofiWebhookIgnoresShopOrders(t *testing.T) {
	h, ledger, _ := newTestHandler(nil)

	rr := postKofi(h, `{"verification_token":"`+testKofiToken+`","kofi_transaction_id":"kofi_3","type":"Shop Order","amount":"8.00","currency":"USD"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if n, _ := ledger.Count(context.Background()); n != 0 {
		t.Fatal("shop orders must not hit the ledger")
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	h, ledger, _ := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	rr := httptest.NewRecorder()
	h.StripeWebhook(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if n, _ := ledger.Count(context.Background()); n != 0 {
		t.Fatal("unsigned webhook must not write the ledger")
	}
}

func TestStripeWebhookAcceptsSignedCheckout(t *testing.T) {
	h, ledger, _ := newTestHandler(nil)

	payload := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_1","amount_total":1250,"currency":"usd","mode":"payment","metadata":{"rank_id":"patron","days":"30"}}}}`
	now := time.Now()
	sig := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=" + stripe.ComputeSignature(now, []byte(payload), "whsec_test")

	httpReq := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	httpReq.Header.Set("Stripe-Signature", sig)
	rr := httptest.NewRecorder()
	h.StripeWebhook(rr, httpReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	d, _ := ledger.GetByTransactionID(context.Background(), ProviderStripe, "pi_1")
	if d == nil {
		t.Fatal("expected ledger entry")
	}
	if d.Amount != 12.50 || d.RankID.String != "patron" || d.Days.Int64 != 30 {
		t.Fatalf("unexpected entry: %+v", d)
	}
}

// Invoices carry amount_paid and subscription_details.metadata rather
// than the checkout session shape.
func TestStripeWebhookAcceptsPaidInvoice(t *testing.T) {
	h, ledger, _ := newTestHandler(nil)

	payload := `{"id":"evt_2","type":"invoice.paid","data":{"object":{"id":"in_1","payment_intent":"pi_2","amount_paid":500,"currency":"usd","subscription_details":{"metadata":{"rank_id":"supporter","days":"30"}}}}}`
	now := time.Now()
	sig := "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=" + stripe.ComputeSignature(now, []byte(payload), "whsec_test")

	httpReq := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	httpReq.Header.Set("Stripe-Signature", sig)
	rr := httptest.NewRecorder()
	h.StripeWebhook(rr, httpReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	d, _ := ledger.GetByTransactionID(context.Background(), ProviderStripe, "pi_2")
	if d == nil {
		t.Fatal("expected ledger entry")
	}
	if d.Amount != 5.00 || d.Kind != KindSubscriptionRenewal || d.RankID.String != "supporter" {
		t.Fatalf("unexpected entry: %+v", d)
	}
}

func TestMidtransWebhookUsesVerifiedStatus(t *testing.T) {
	checker := &checkerStub{status: &midtranspay.Status{
		OrderID:           "order_1",
		TransactionStatus: "settlement",
		Amount:            150000,
		Currency:          "IDR",
	}}
	h, ledger, _ := newTestHandler(checker)

	// The body claims a different amount; only the verified status counts.
	body := `{"order_id":"order_1","transaction_status":"settlement","gross_amount":"999999","custom_field1":"patron","custom_field2":"30"}`
	httpReq := httptest.NewRequest(http.MethodPost, "/webhooks/midtrans", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.MidtransWebhook(rr, httpReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	d, _ := ledger.GetByTransactionID(context.Background(), ProviderMidtrans, "order_1")
	if d == nil || d.Amount != 150000 || d.Currency != "IDR" {
		t.Fatalf("expected verified amount, got %+v", d)
	}
}

func TestMidtransWebhookIgnoresPending(t *testing.T) {
	checker := &checkerStub{status: &midtranspay.Status{OrderID: "order_2", TransactionStatus: "pending"}}
	h, ledger, _ := newTestHandler(checker)

	httpReq := httptest.NewRequest(http.MethodPost, "/webhooks/midtrans", strings.NewReader(`{"order_id":"order_2"}`))
	rr := httptest.NewRecorder()
	h.MidtransWebhook(rr, httpReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if n, _ := ledger.Count(context.Background()); n != 0 {
		t.Fatal("pending transactions must not hit the ledger")
	}
}

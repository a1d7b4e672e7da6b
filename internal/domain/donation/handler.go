package donation

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/craftvale/craftvale-api/internal/domain/account"
	"github.com/craftvale/craftvale-api/internal/domain/rank"
	"github.com/craftvale/craftvale-api/internal/pkg/kofi"
	"github.com/craftvale/craftvale-api/internal/pkg/midtranspay"
	"github.com/craftvale/craftvale-api/internal/pkg/response"
	"github.com/craftvale/craftvale-api/internal/pkg/stripe"
	"github.com/craftvale/craftvale-api/internal/pkg/validator"
	"github.com/craftvale/craftvale-api/internal/pkg/ws"
)

const maxWebhookBody = 64 * 1024

// Handler handles donation HTTP requests
type Handler struct {
	service *Service
	catalog *rank.Catalog
	hub     *ws.Hub

	stripeSecret string
	midtrans     midtranspay.Checker
	kofiToken    string
}

// NewHandler creates donation handler
func NewHandler(service *Service, catalog *rank.Catalog, hub *ws.Hub, stripeSecret string, midtrans midtranspay.Checker, kofiToken string) *Handler {
	return &Handler{
		service:      service,
		catalog:      catalog,
		hub:          hub,
		stripeSecret: stripeSecret,
		midtrans:     midtrans,
		kofiToken:    kofiToken,
	}
}

// StripeWebhook handles POST /webhooks/stripe
// @Summary Stripe webhook
// @Description Verifies the Stripe-Signature header and reconciles completed checkouts, paid invoices and refunds
// @Tags Donation Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /webhooks/stripe [post]
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "unable to read body")
		return
	}

	if err := stripe.VerifySignature(body, r.Header.Get("Stripe-Signature"), h.stripeSecret, stripe.DefaultTolerance, time.Now()); err != nil {
		log.Warn().Err(err).Msg("stripe signature rejected")
		response.Error(w, http.StatusBadRequest, "BAD_SIGNATURE", "signature verification failed")
		return
	}

	event, err := stripe.ParseEvent(body)
	if err != nil {
		response.BadRequest(w, "invalid event payload")
		return
	}

	switch event.Type {
	case stripe.EventCheckoutCompleted:
		session, err := event.Session()
		if err != nil {
			response.BadRequest(w, "invalid event object")
			return
		}
		h.processPayment(w, r, checkoutPaymentEvent(session))

	case stripe.EventInvoicePaid:
		invoice, err := event.Invoice()
		if err != nil {
			response.BadRequest(w, "invalid event object")
			return
		}
		h.processPayment(w, r, invoicePaymentEvent(invoice))

	case stripe.EventChargeRefunded:
		charge, err := event.Refund()
		if err != nil {
			response.BadRequest(w, "invalid event object")
			return
		}
		txID := charge.PaymentIntent
		if txID == "" {
			txID = charge.ID
		}
		if err := h.service.MarkRefundedByTransaction(r.Context(), ProviderStripe, txID); err != nil {
			log.Error().Err(err).Str("transaction_id", txID).Msg("stripe refund handling failed")
			response.InternalError(w)
			return
		}
		response.OK(w, map[string]string{"status": "refunded"})

	default:
		response.OK(w, map[string]string{"status": "ignored"})
	}
}

func checkoutPaymentEvent(session *stripe.CheckoutSession) *PaymentEvent {
	kind := KindOneTime
	if session.Mode == "subscription" {
		kind = KindSubscriptionInitial
	}
	return &PaymentEvent{
		Provider:      ProviderStripe,
		TransactionID: session.TransactionID(),
		Amount:        session.Amount(),
		Currency:      session.Currency,
		Kind:          kind,
		RankID:        session.MetaString("rank_id"),
		Days:          session.MetaInt("days"),
		AccountID:     session.MetaInt64("account_id"),
		Email:         session.CustomerEmail,
	}
}

func invoicePaymentEvent(invoice *stripe.Invoice) *PaymentEvent {
	return &PaymentEvent{
		Provider:      ProviderStripe,
		TransactionID: invoice.TransactionID(),
		Amount:        invoice.Amount(),
		Currency:      invoice.Currency,
		Kind:          KindSubscriptionRenewal,
		RankID:        invoice.MetaString("rank_id"),
		Days:          invoice.MetaInt("days"),
		AccountID:     invoice.MetaInt64("account_id"),
		Email:         invoice.CustomerEmail,
	}
}

// MidtransWebhook handles POST /webhooks/midtrans
// @Summary Midtrans webhook
// @Description Re-verifies the transaction status against the Midtrans API before reconciling
// @Tags Donation Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /webhooks/midtrans [post]
func (h *Handler) MidtransWebhook(w http.ResponseWriter, r *http.Request) {
	var notif MidtransNotification
	if err := response.DecodeJSON(r.Body, &notif); err != nil {
		response.BadRequest(w, "invalid notification body")
		return
	}
	if fields := validator.Validate(&notif); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	// The notification body is unauthenticated. Only the status read
	// back from Midtrans decides what happens.
	status, err := h.midtrans.CheckTransaction(notif.OrderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", notif.OrderID).Msg("midtrans status check failed")
		response.InternalError(w)
		return
	}

	switch {
	case status.Refunded():
		if err := h.service.MarkRefundedByTransaction(r.Context(), ProviderMidtrans, status.OrderID); err != nil {
			log.Error().Err(err).Str("order_id", status.OrderID).Msg("midtrans refund handling failed")
			response.InternalError(w)
			return
		}
		response.OK(w, map[string]string{"status": "refunded"})

	case status.Settled():
		h.processPayment(w, r, midtransPaymentEvent(status, &notif))

	default:
		response.OK(w, map[string]string{"status": "ignored"})
	}
}

func midtransPaymentEvent(status *midtranspay.Status, notif *MidtransNotification) *PaymentEvent {
	currency := status.Currency
	if currency == "" {
		currency = "IDR"
	}
	event := &PaymentEvent{
		Provider:      ProviderMidtrans,
		TransactionID: status.OrderID,
		Amount:        status.Amount,
		Currency:      currency,
		Kind:          KindOneTime,
		RankID:        notif.CustomField1,
	}
	if notif.CustomField2 != "" {
		if days, err := strconv.Atoi(notif.CustomField2); err == nil {
			event.Days = days
		}
	}
	if notif.CustomField3 != "" {
		if id, err := strconv.ParseInt(notif.CustomField3, 10, 64); err == nil {
			event.AccountID = id
		}
	}
	return event
}

// KofiWebhook handles POST /webhooks/kofi
// @Summary Ko-fi webhook
// @Description Accepts Ko-fi's form-encoded "data" payload; tier and days are derived from the amount
// @Tags Donation Webhooks
// @Accept application/x-www-form-urlencoded
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /webhooks/kofi [post]
func (h *Handler) KofiWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.BadRequest(w, "invalid form data")
		return
	}

	payload, err := kofi.ParsePayload(r.PostFormValue("data"))
	if err != nil {
		response.BadRequest(w, "invalid data field")
		return
	}
	if !payload.VerifyToken(h.kofiToken) {
		log.Warn().Str("transaction_id", payload.KofiTransactionID).Msg("kofi verification token mismatch")
		response.Unauthorized(w, "verification token mismatch")
		return
	}
	if payload.Type == kofi.TypeShopOrder {
		response.OK(w, map[string]string{"status": "ignored"})
		return
	}

	kind := KindOneTime
	if payload.IsSubscriptionPayment {
		kind = KindSubscriptionRenewal
		if payload.IsFirstSubscriptionPayment {
			kind = KindSubscriptionInitial
		}
	}

	h.processPayment(w, r, &PaymentEvent{
		Provider:      ProviderKofi,
		TransactionID: payload.KofiTransactionID,
		Amount:        payload.ParsedAmount(),
		Currency:      payload.Currency,
		Kind:          kind,
		Message:       payload.Message,
		Name:          payload.FromName,
		Email:         payload.Email,
	})
}

// processPayment runs the reconciliation core and maps its outcome to
// the HTTP codes provider retry policies expect: 2xx for accepted
// (including replays), 4xx for malformed input, 5xx for retryable
// internal failures.
func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request, event *PaymentEvent) {
	result, err := h.service.Process(r.Context(), event)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			response.BadRequest(w, "invalid payment event")
			return
		}
		log.Error().Err(err).
			Str("provider", string(event.Provider)).
			Str("transaction_id", event.TransactionID).
			Msg("payment reconciliation failed")
		response.InternalError(w)
		return
	}
	response.OK(w, result)
}

// GetRecent handles GET /donations/recent
// @Summary Recent donations
// @Description Returns the latest completed donations for the public feed
// @Tags Donation
// @Produce json
// @Param limit query int false "Number of entries (default 20, max 50)"
// @Success 200 {object} response.Response{data=[]DonationView}
// @Router /donations/recent [get]
func (h *Handler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 50 {
			limit = v
		}
	}

	entries, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	views := make([]DonationView, 0, len(entries))
	for _, e := range entries {
		view := DonationView{
			DonorName: "Anonymous",
			Amount:    e.Amount,
			Currency:  e.Currency,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.DonorName.Valid {
			view.DonorName = e.DonorName.String
		}
		if e.RankID.Valid {
			view.RankID = e.RankID.String
		}
		if e.Note.Valid {
			view.Message = e.Note.String
		}
		views = append(views, view)
	}
	response.OK(w, views)
}

// GetRanks handles GET /donations/ranks
// @Summary Rank catalog
// @Description Returns the active rank tiers
// @Tags Donation
// @Produce json
// @Success 200 {object} response.Response{data=[]rank.Tier}
// @Router /donations/ranks [get]
func (h *Handler) GetRanks(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.catalog.List(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, tiers)
}

// ListLedger handles GET /admin/donations
// @Summary Ledger listing
// @Description Returns a page of the donation ledger
// @Tags Donation Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Entries per page (default 50, max 100)"
// @Success 200 {object} response.Response{data=[]Donation}
// @Failure 401 {object} response.Response
// @Router /admin/donations [get]
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	page := 1
	limit := 50
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	donations, total, err := h.service.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	pages := (total + limit - 1) / limit
	response.WithMeta(w, donations, response.Meta{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	})
}

// RefundDonation handles POST /admin/donations/{id}/refund
// @Summary Mark donation refunded
// @Tags Donation Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "Ledger entry id"
// @Success 204
// @Failure 404 {object} response.Response
// @Router /admin/donations/{id}/refund [post]
func (h *Handler) RefundDonation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid donation id")
		return
	}

	if err := h.service.MarkRefunded(r.Context(), id); err != nil {
		if errors.Is(err, ErrDonationNotFound) {
			response.NotFound(w, "donation not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.NoContent(w)
}

// ConvertRank handles POST /admin/accounts/{id}/rank/convert
// @Summary Convert an account's rank
// @Description Transfers the remaining value of the current rank onto a different tier
// @Tags Donation Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Account id"
// @Param request body ConvertRankRequest true "Target tier"
// @Success 200 {object} response.Response{data=ConversionResult}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /admin/accounts/{id}/rank/convert [post]
func (h *Handler) ConvertRank(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid account id")
		return
	}

	var req ConvertRankRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if fields := validator.Validate(&req); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	result, err := h.service.ConvertRank(r.Context(), accountID, strings.ToLower(strings.TrimSpace(req.RankID)))
	if err != nil {
		switch {
		case errors.Is(err, account.ErrAccountNotFound):
			response.NotFound(w, "account not found")
		case errors.Is(err, ErrUnknownRank):
			response.BadRequest(w, "unknown rank tier")
		case errors.Is(err, ErrNoCurrentRank):
			response.BadRequest(w, "account has no active rank")
		case errors.Is(err, ErrInvalidEvent):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w)
		}
		return
	}
	response.OK(w, result)
}

// InvalidateRankCache handles POST /admin/ranks/invalidate
// @Summary Invalidate the rank catalog cache
// @Tags Donation Admin
// @Security BearerAuth
// @Success 204
// @Router /admin/ranks/invalidate [post]
func (h *Handler) InvalidateRankCache(w http.ResponseWriter, r *http.Request) {
	h.catalog.Invalidate(r.Context())
	response.NoContent(w)
}

// ExportLedger handles POST /admin/donations/export
// @Summary Export ledger rows to archive storage
// @Tags Donation Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ExportRequest true "Date range (from inclusive, to exclusive)"
// @Success 200 {object} response.Response{data=ExportResponse}
// @Failure 400 {object} response.Response
// @Router /admin/donations/export [post]
func (h *Handler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if fields := validator.Validate(&req); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		response.BadRequest(w, "invalid from date")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		response.BadRequest(w, "invalid to date")
		return
	}

	key, err := h.service.ExportCSV(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			response.BadRequest(w, "empty export range")
			return
		}
		log.Error().Err(err).Msg("ledger export failed")
		response.InternalError(w)
		return
	}
	response.OK(w, ExportResponse{Key: key})
}

// Routes returns the public donation router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/recent", h.GetRecent)
	r.Get("/ranks", h.GetRanks)
	r.Get("/alerts", h.hub.ServeWS)
	return r
}

// WebhookRoutes returns webhook router (no auth, verification per provider)
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", h.StripeWebhook)
	r.Post("/midtrans", h.MidtransWebhook)
	r.Post("/kofi", h.KofiWebhook)
	return r
}

// AdminRoutes returns the admin router (JWT + admin role)
func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Get("/donations", h.ListLedger)
	r.Post("/donations/export", h.ExportLedger)
	r.Post("/donations/{id}/refund", h.RefundDonation)
	r.Post("/accounts/{id}/rank/convert", h.ConvertRank)
	r.Post("/ranks/invalidate", h.InvalidateRankCache)
	return r
}

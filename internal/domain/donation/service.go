package donation

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/craftvale/craftvale-api/internal/domain/account"
	"github.com/craftvale/craftvale-api/internal/domain/rank"
	"github.com/craftvale/craftvale-api/internal/pkg/archive"
	"github.com/craftvale/craftvale-api/internal/pkg/metrics"
	"github.com/craftvale/craftvale-api/internal/pkg/validator"
)

// Result is the outcome of reconciling one payment event. It reflects
// only the ledger and account writes; fan-out runs after and is not
// represented here.
type Result struct {
	Accepted  bool      `json:"accepted"`
	Duplicate bool      `json:"duplicate"`
	LedgerID  int64     `json:"ledger_id"`
	AccountID int64     `json:"account_id,omitempty"` // 0 = guest
	RankID    string    `json:"rank_id,omitempty"`
	Days      int       `json:"days,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ConversionResult is the outcome of an explicit rank conversion.
type ConversionResult struct {
	AccountID int64     `json:"account_id"`
	RankID    string    `json:"rank_id"`
	Days      int       `json:"days"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service is the reconciliation orchestrator
type Service struct {
	repo     Repository
	accounts account.Repository
	catalog  *rank.Catalog
	resolver *Resolver
	notifier *Notifier
	outbox   *Outbox
	uploader archive.Uploader

	now func() time.Time
}

// NewService creates donation service
func NewService(repo Repository, accounts account.Repository, catalog *rank.Catalog, resolver *Resolver, notifier *Notifier, outbox *Outbox, uploader archive.Uploader) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		catalog:  catalog,
		resolver: resolver,
		notifier: notifier,
		outbox:   outbox,
		uploader: uploader,
		now:      time.Now,
	}
}

// Process reconciles one verified payment event: idempotency gate,
// identity resolution, tier resolution, entitlement, then the ledger
// row and account update in a single transaction. A duplicate
// transaction id is a success referencing the existing row. Fan-out is
// enqueued only after the transaction commits.
func (s *Service) Process(ctx context.Context, event *PaymentEvent) (*Result, error) {
	event.Normalize()
	if fields := validator.Validate(event); fields != nil {
		metrics.DonationProcessed(string(event.Provider), metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, fields)
	}

	if existing, err := s.repo.GetByTransactionID(ctx, event.Provider, event.TransactionID); err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	} else if existing != nil {
		metrics.DonationProcessed(string(event.Provider), metrics.OutcomeDuplicate)
		return duplicateResult(existing), nil
	}

	now := s.now()
	acc := s.resolver.Resolve(ctx, event)

	tier, days, err := s.resolveTier(ctx, event)
	if err != nil {
		return nil, err
	}

	d := &Donation{
		Amount:        event.Amount,
		Currency:      event.Currency,
		Status:        StatusCompleted,
		Provider:      event.Provider,
		TransactionID: event.TransactionID,
		Kind:          event.Kind,
	}
	if event.Message != "" {
		d.Note = sql.NullString{String: event.Message, Valid: true}
	}
	if acc != nil {
		d.AccountID = sql.NullInt64{Int64: acc.ID, Valid: true}
	}

	// Entitlement needs both a resolved account and a resolved tier.
	var expiresAt time.Time
	grantRank := acc != nil && tier != nil && days > 0
	if grantRank {
		expiresAt = GrantExpiry(acc, tier.ID, days, now)
		d.RankID = sql.NullString{String: tier.ID, Valid: true}
		d.Days = sql.NullInt64{Int64: int64(days), Valid: true}
	}

	err = s.repo.InTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.InsertTx(ctx, tx, d); err != nil {
			return err
		}
		if acc == nil {
			return nil
		}
		if grantRank {
			return s.accounts.UpdateEntitlementTx(ctx, tx, acc.ID, tier.ID, expiresAt, event.Amount)
		}
		return s.accounts.AddLifetimeDonatedTx(ctx, tx, acc.ID, event.Amount)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			// Lost the insert race to a concurrent delivery; the
			// winner's row is the answer.
			existing, rerr := s.repo.GetByTransactionID(ctx, event.Provider, event.TransactionID)
			if rerr != nil || existing == nil {
				return nil, fmt.Errorf("duplicate re-read failed: %w", rerr)
			}
			metrics.DonationProcessed(string(event.Provider), metrics.OutcomeDuplicate)
			return duplicateResult(existing), nil
		}
		metrics.DonationProcessed(string(event.Provider), metrics.OutcomeFailed)
		return nil, err
	}

	metrics.DonationProcessed(string(event.Provider), metrics.OutcomeAccepted)
	log.Info().
		Str("provider", string(event.Provider)).
		Str("transaction_id", event.TransactionID).
		Int64("ledger_id", d.ID).
		Bool("guest", acc == nil).
		Msg("donation reconciled")

	s.enqueueFanout(ctx, d, event, acc, tier, now)

	result := &Result{Accepted: true, LedgerID: d.ID}
	if acc != nil {
		result.AccountID = acc.ID
	}
	if grantRank {
		result.RankID = tier.ID
		result.Days = days
		result.ExpiresAt = expiresAt
	}
	return result, nil
}

// resolveTier applies the pre-selected tier when it is valid, falls
// back to amount matching for providers that work that way, and
// otherwise grants no rank. An unknown tier id is not an error: the
// money is still recorded.
func (s *Service) resolveTier(ctx context.Context, event *PaymentEvent) (*rank.Tier, int, error) {
	if event.RankID != "" {
		tier, err := s.catalog.FindByID(ctx, event.RankID)
		if err != nil {
			return nil, 0, fmt.Errorf("rank lookup failed: %w", err)
		}
		if tier != nil {
			days := event.Days
			if days <= 0 {
				days = tier.BaseDays
			}
			return tier, days, nil
		}
		log.Warn().
			Str("rank_id", event.RankID).
			Str("transaction_id", event.TransactionID).
			Msg("pre-selected rank not in catalog, recording payment without rank")
	}

	if !event.Provider.AmountMatched() {
		return nil, 0, nil
	}

	tier, err := s.catalog.BestForAmount(ctx, event.Amount)
	if err != nil {
		return nil, 0, fmt.Errorf("rank lookup failed: %w", err)
	}
	if tier == nil {
		return nil, 0, nil
	}
	return tier, DaysForAmount(tier, event.Amount), nil
}

func (s *Service) enqueueFanout(ctx context.Context, d *Donation, event *PaymentEvent, acc *account.Account, newTier *rank.Tier, now time.Time) {
	if s.outbox == nil || s.notifier == nil {
		return
	}

	donor := donorName(event, acc)
	if task := s.notifier.AlertTask(d, donor); task != nil {
		s.outbox.Enqueue(*task)
	}
	if task := s.notifier.OperatorAlertTask(d, donor); task != nil {
		s.outbox.Enqueue(*task)
	}

	// Role sync only when the tier actually changed; a same-rank
	// extension leaves the Discord role alone.
	if acc == nil || newTier == nil {
		return
	}
	oldRankID := acc.ActiveRankID(now)
	if oldRankID == newTier.ID {
		return
	}
	var oldTier *rank.Tier
	if oldRankID != "" {
		var err error
		oldTier, err = s.catalog.FindByID(ctx, oldRankID)
		if err != nil {
			log.Warn().Err(err).Str("rank_id", oldRankID).Msg("old tier lookup failed, syncing new role only")
		}
	}
	if task := s.notifier.RoleSyncTask(acc, oldTier, newTier); task != nil {
		s.outbox.Enqueue(*task)
	}
}

func donorName(event *PaymentEvent, acc *account.Account) string {
	if event.Name != "" {
		return event.Name
	}
	if acc != nil {
		if acc.MinecraftHandle.Valid {
			return acc.MinecraftHandle.String
		}
		if acc.DisplayName.Valid {
			return acc.DisplayName.String
		}
	}
	return "Anonymous"
}

func duplicateResult(d *Donation) *Result {
	r := &Result{Accepted: true, Duplicate: true, LedgerID: d.ID}
	if d.AccountID.Valid {
		r.AccountID = d.AccountID.Int64
	}
	if d.RankID.Valid {
		r.RankID = d.RankID.String
	}
	if d.Days.Valid {
		r.Days = int(d.Days.Int64)
	}
	return r
}

// ConvertRank moves an account onto a different tier, transferring the
// remaining value of the current entitlement at the two tiers' per-day
// prices. Zero converted days is accepted: the new rank is assigned
// and expires immediately.
func (s *Service) ConvertRank(ctx context.Context, accountID int64, newRankID string) (*ConversionResult, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, account.ErrAccountNotFound
	}

	now := s.now()
	currentID := acc.ActiveRankID(now)
	if currentID == "" {
		return nil, ErrNoCurrentRank
	}
	if currentID == newRankID {
		return nil, fmt.Errorf("%w: account already holds %s", ErrInvalidEvent, newRankID)
	}

	fromTier, err := s.catalog.FindByID(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("rank lookup failed: %w", err)
	}
	toTier, err := s.catalog.FindByID(ctx, newRankID)
	if err != nil {
		return nil, fmt.Errorf("rank lookup failed: %w", err)
	}
	if fromTier == nil || toTier == nil {
		return nil, ErrUnknownRank
	}

	converted := ConvertDays(fromTier, toTier, acc.RankDaysRemaining(now))
	expiresAt := now.AddDate(0, 0, converted)

	if err := s.accounts.UpdateRank(ctx, accountID, toTier.ID, expiresAt); err != nil {
		return nil, err
	}

	log.Info().
		Int64("account_id", accountID).
		Str("from", fromTier.ID).
		Str("to", toTier.ID).
		Int("days", converted).
		Msg("rank converted")

	if s.outbox != nil && s.notifier != nil {
		if task := s.notifier.RoleSyncTask(acc, fromTier, toTier); task != nil {
			s.outbox.Enqueue(*task)
		}
	}

	return &ConversionResult{
		AccountID: accountID,
		RankID:    toTier.ID,
		Days:      converted,
		ExpiresAt: expiresAt,
	}, nil
}

// MarkRefunded records an external refund event against a ledger
// entry. Status is the only field that moves; entitlement already
// granted is not clawed back.
func (s *Service) MarkRefunded(ctx context.Context, id int64) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrDonationNotFound
	}
	if d.Status == StatusRefunded {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusRefunded); err != nil {
		return err
	}
	log.Info().Int64("ledger_id", id).Msg("donation marked refunded")
	return nil
}

// MarkRefundedByTransaction is the webhook-driven variant of
// MarkRefunded. An unknown transaction id is ignored: refunds can
// arrive for payments the ledger never accepted.
func (s *Service) MarkRefundedByTransaction(ctx context.Context, provider Provider, transactionID string) error {
	d, err := s.repo.GetByTransactionID(ctx, provider, transactionID)
	if err != nil {
		return err
	}
	if d == nil {
		log.Warn().
			Str("provider", string(provider)).
			Str("transaction_id", transactionID).
			Msg("refund for unknown transaction, ignoring")
		return nil
	}
	if d.Status == StatusRefunded {
		return nil
	}
	return s.repo.UpdateStatus(ctx, d.ID, StatusRefunded)
}

// Recent returns the latest completed donations for the public feed.
func (s *Service) Recent(ctx context.Context, limit int) ([]*FeedEntry, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.repo.ListRecent(ctx, limit)
}

// List returns a page of the ledger plus the total row count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Donation, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	donations, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return donations, total, nil
}

// ExportCSV writes all ledger rows created in [from, to) as a CSV
// object to archive storage and returns the object key.
func (s *Service) ExportCSV(ctx context.Context, from, to time.Time) (string, error) {
	if s.uploader == nil {
		return "", errors.New("archive storage is not configured")
	}
	if !to.After(from) {
		return "", fmt.Errorf("%w: export range is empty", ErrInvalidEvent)
	}

	donations, err := s.repo.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "account_id", "amount", "currency", "status", "provider", "transaction_id", "rank_id", "days", "kind", "created_at"})
	for _, d := range donations {
		accountID := ""
		if d.AccountID.Valid {
			accountID = strconv.FormatInt(d.AccountID.Int64, 10)
		}
		rankID := ""
		if d.RankID.Valid {
			rankID = d.RankID.String
		}
		days := ""
		if d.Days.Valid {
			days = strconv.FormatInt(d.Days.Int64, 10)
		}
		_ = w.Write([]string{
			strconv.FormatInt(d.ID, 10),
			accountID,
			strconv.FormatFloat(d.Amount, 'f', 2, 64),
			d.Currency,
			string(d.Status),
			string(d.Provider),
			d.TransactionID,
			rankID,
			days,
			string(d.Kind),
			d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to build csv: %w", err)
	}

	key := fmt.Sprintf("ledger/%s_%s.csv", from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	if err := s.uploader.Upload(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	log.Info().Str("key", key).Int("rows", len(donations)).Msg("ledger export uploaded")
	return key, nil
}

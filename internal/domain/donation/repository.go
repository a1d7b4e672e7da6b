package donation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
// The (provider, transaction_id) constraint is the idempotency gate:
// under concurrent duplicate delivery the second insert fails here.
const pgUniqueViolation = "23505"

// Repository defines donation ledger data access
type Repository interface {
	// InTx runs fn inside one transaction; rollback on error, commit
	// otherwise. The ledger insert and the account update share this
	// transaction so they succeed or fail together.
	InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	// InsertTx writes a ledger entry inside the caller's transaction and
	// fills in the assigned id. Returns ErrDuplicateTransaction when the
	// (provider, transaction_id) unique constraint fires.
	InsertTx(ctx context.Context, tx *sqlx.Tx, d *Donation) error
	GetByTransactionID(ctx context.Context, provider Provider, transactionID string) (*Donation, error)
	GetByID(ctx context.Context, id int64) (*Donation, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	ListRecent(ctx context.Context, limit int) ([]*FeedEntry, error)
	List(ctx context.Context, limit, offset int) ([]*Donation, error)
	Count(ctx context.Context) (int, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*Donation, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates donation repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *repository) InsertTx(ctx context.Context, tx *sqlx.Tx, d *Donation) error {
	query := `
		INSERT INTO donations (account_id, amount, currency, status, provider, transaction_id, rank_id, days, kind, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at
	`
	err := tx.QueryRowContext(ctx, query,
		d.AccountID,
		d.Amount,
		d.Currency,
		d.Status,
		d.Provider,
		d.TransactionID,
		d.RankID,
		d.Days,
		d.Kind,
		d.Note,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to insert donation: %w", err)
	}
	return nil
}

const donationColumns = `id, account_id, amount, currency, status, provider, transaction_id, rank_id, days, kind, note, created_at`

func (r *repository) GetByTransactionID(ctx context.Context, provider Provider, transactionID string) (*Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE provider = $1 AND transaction_id = $2`
	var d Donation
	err := r.db.GetContext(ctx, &d, query, provider, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`
	var d Donation
	err := r.db.GetContext(ctx, &d, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	query := `UPDATE donations SET status = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update donation status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDonationNotFound
	}
	return nil
}

// FeedEntry is a ledger row decorated with the donor's visible name
// for the public feed.
type FeedEntry struct {
	Donation
	DonorName sql.NullString `db:"donor_name"`
}

func (r *repository) ListRecent(ctx context.Context, limit int) ([]*FeedEntry, error) {
	query := `
		SELECT d.id, d.account_id, d.amount, d.currency, d.status, d.provider,
		       d.transaction_id, d.rank_id, d.days, d.kind, d.note, d.created_at,
		       COALESCE(a.minecraft_handle, a.display_name) AS donor_name
		FROM donations d
		LEFT JOIN accounts a ON a.id = d.account_id
		WHERE d.status = 'completed'
		ORDER BY d.created_at DESC
		LIMIT $1
	`
	var entries []*FeedEntry
	err := r.db.SelectContext(ctx, &entries, query, limit)
	return entries, err
}

func (r *repository) List(ctx context.Context, limit, offset int) ([]*Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	var donations []*Donation
	err := r.db.SelectContext(ctx, &donations, query, limit, offset)
	return donations, err
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM donations`)
	return count, err
}

func (r *repository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*Donation, error) {
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	var donations []*Donation
	err := r.db.SelectContext(ctx, &donations, query, from, to)
	return donations, err
}

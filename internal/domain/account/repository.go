package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository defines account data access. Lookups return (nil, nil) when
// no account matches; only storage failures surface as errors.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByHandle(ctx context.Context, handle string) (*Account, error)
	GetByDisplayName(ctx context.Context, name string) (*Account, error)

	// UpdateEntitlementTx sets the rank fields and adds to the lifetime
	// accumulator inside the caller's transaction.
	UpdateEntitlementTx(ctx context.Context, tx *sqlx.Tx, accountID int64, rankID string, expiresAt time.Time, amount float64) error
	// AddLifetimeDonatedTx adds to the lifetime accumulator without
	// touching rank fields (tier-less payments).
	AddLifetimeDonatedTx(ctx context.Context, tx *sqlx.Tx, accountID int64, amount float64) error
	// UpdateRank rewrites the rank fields outside a payment (explicit
	// conversions).
	UpdateRank(ctx context.Context, accountID int64, rankID string, expiresAt time.Time) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates account repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const accountColumns = `id, email, minecraft_handle, display_name, rank_id, rank_expires_at, lifetime_donated, discord_user_id, created_at, updated_at`

func (r *repository) GetByID(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByEmail matches case-insensitively; callers pass the address
// lowercased and stored emails may carry any casing.
func (r *repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = $1`
	return r.getOne(ctx, query, email)
}

func (r *repository) GetByHandle(ctx context.Context, handle string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE minecraft_handle = $1`
	return r.getOne(ctx, query, handle)
}

func (r *repository) GetByDisplayName(ctx context.Context, name string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE display_name = $1`
	return r.getOne(ctx, query, name)
}

func (r *repository) getOne(ctx context.Context, query string, arg interface{}) (*Account, error) {
	var a Account
	err := r.db.GetContext(ctx, &a, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *repository) UpdateEntitlementTx(ctx context.Context, tx *sqlx.Tx, accountID int64, rankID string, expiresAt time.Time, amount float64) error {
	query := `
		UPDATE accounts
		SET rank_id = $2, rank_expires_at = $3,
		    lifetime_donated = lifetime_donated + $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query, accountID, rankID, expiresAt, amount)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	return requireRow(result, accountID)
}

func (r *repository) AddLifetimeDonatedTx(ctx context.Context, tx *sqlx.Tx, accountID int64, amount float64) error {
	query := `
		UPDATE accounts
		SET lifetime_donated = lifetime_donated + $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query, accountID, amount)
	if err != nil {
		return fmt.Errorf("failed to update lifetime donated: %w", err)
	}
	return requireRow(result, accountID)
}

func (r *repository) UpdateRank(ctx context.Context, accountID int64, rankID string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET rank_id = $2, rank_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, accountID, rankID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update rank: %w", err)
	}
	return requireRow(result, accountID)
}

func requireRow(result sql.Result, accountID int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
	}
	return nil
}

package account

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func accountRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "minecraft_handle", "display_name",
		"rank_id", "rank_expires_at", "lifetime_donated", "discord_user_id",
		"created_at", "updated_at",
	}).AddRow(7, "notch@example.com", "Notch", "Notch", "supporter", now.Add(240*time.Hour), 25.0, "111222333", now, now)
}

func TestGetByHandle(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE minecraft_handle = \$1`).
		WithArgs("Notch").
		WillReturnRows(accountRows())

	a, err := repo.GetByHandle(context.Background(), "Notch")
	if err != nil {
		t.Fatalf("GetByHandle: %v", err)
	}
	if a == nil || a.ID != 7 {
		t.Fatalf("unexpected account: %+v", a)
	}
	if !a.HasActiveRank(time.Now()) {
		t.Fatal("expected active rank")
	}
}

func TestGetByEmailMatchesCaseInsensitively(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE LOWER\(email\) = \$1`).
		WithArgs("notch@example.com").
		WillReturnRows(accountRows())

	a, err := repo.GetByEmail(context.Background(), "notch@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if a == nil || a.ID != 7 {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestGetByIDNoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	a, err := repo.GetByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil for missing account, got %+v", a)
	}
}

func TestUpdateEntitlementTxMissingAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("Beginx: %v", err)
	}

	err = repo.UpdateEntitlementTx(context.Background(), tx, 42, "patron", time.Now().Add(720*time.Hour), 10)
	if err == nil {
		t.Fatal("expected error for missing account")
	}
}

func TestRankDaysRemaining(t *testing.T) {
	now := time.Now()

	a := &Account{}
	if got := a.RankDaysRemaining(now); got != 0 {
		t.Fatalf("expected 0 for no rank, got %d", got)
	}

	a.RankID.String, a.RankID.Valid = "supporter", true
	a.RankExpiresAt.Time, a.RankExpiresAt.Valid = now.Add(10*24*time.Hour), true
	if got := a.RankDaysRemaining(now); got != 10 {
		t.Fatalf("expected 10 days, got %d", got)
	}

	// Partial day rounds up
	a.RankExpiresAt.Time = now.Add(10*24*time.Hour + time.Minute)
	if got := a.RankDaysRemaining(now); got != 11 {
		t.Fatalf("expected 11 days, got %d", got)
	}

	// Expired rank counts as zero
	a.RankExpiresAt.Time = now.Add(-time.Hour)
	if got := a.RankDaysRemaining(now); got != 0 {
		t.Fatalf("expected 0 for expired rank, got %d", got)
	}
}

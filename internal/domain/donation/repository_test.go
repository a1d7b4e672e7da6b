package donation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestInsertTxAssignsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO donations").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	d := &Donation{
		Amount:        12.50,
		Currency:      "USD",
		Status:        StatusCompleted,
		Provider:      ProviderStripe,
		TransactionID: "pi_7",
		Kind:          KindOneTime,
	}
	if err := repo.InsertTx(context.Background(), tx, d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if d.ID != 7 || !d.CreatedAt.Equal(created) {
		t.Fatalf("expected id 7 / %v, got %d / %v", created, d.ID, d.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertTxUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO donations").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "donations_provider_transaction_id_key"})
	mock.ExpectRollback()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = repo.InsertTx(context.Background(), tx, &Donation{
		Provider:      ProviderStripe,
		TransactionID: "pi_dup",
		Amount:        5,
		Currency:      "USD",
		Status:        StatusCompleted,
		Kind:          KindOneTime,
	})
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	_ = tx.Rollback()
}

func TestGetByTransactionIDNoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM donations WHERE provider").
		WithArgs(ProviderKofi, "kofi_missing").
		WillReturnError(sql.ErrNoRows)

	d, err := repo.GetByTransactionID(context.Background(), ProviderKofi, "kofi_missing")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil, got %+v", d)
	}
}

func TestGetByTransactionIDMapsRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "account_id", "amount", "currency", "status", "provider",
		"transaction_id", "rank_id", "days", "kind", "note", "created_at",
	}).AddRow(int64(3), int64(42), 12.5, "USD", "completed", "stripe", "pi_3", "patron", int64(36), "one_time", "thanks", created)
	mock.ExpectQuery("SELECT (.+) FROM donations WHERE provider").
		WithArgs(ProviderStripe, "pi_3").
		WillReturnRows(rows)

	d, err := repo.GetByTransactionID(context.Background(), ProviderStripe, "pi_3")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.ID != 3 || d.AccountID.Int64 != 42 || d.RankID.String != "patron" || d.Days.Int64 != 36 {
		t.Fatalf("unexpected mapping: %+v", d)
	}
	if d.IsGuest() {
		t.Fatal("row with account id must not be a guest")
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectExec("UPDATE donations SET status").
		WithArgs(int64(99), StatusRefunded).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 99, StatusRefunded)
	if !errors.Is(err, ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}
}

func TestListRecentMapsDonorName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "account_id", "amount", "currency", "status", "provider",
		"transaction_id", "rank_id", "days", "kind", "note", "created_at", "donor_name",
	}).
		AddRow(int64(2), int64(1), 10.0, "USD", "completed", "kofi", "kofi_2", "patron", int64(30), "one_time", nil, created, "Steve_99").
		AddRow(int64(1), nil, 2.5, "USD", "completed", "kofi", "kofi_1", nil, nil, "one_time", "gg", created, nil)
	mock.ExpectQuery("SELECT (.+) FROM donations d").
		WithArgs(20).
		WillReturnRows(rows)

	entries, err := repo.ListRecent(context.Background(), 20)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].DonorName.String != "Steve_99" {
		t.Fatalf("expected donor name, got %+v", entries[0].DonorName)
	}
	if entries[1].DonorName.Valid || !entries[1].IsGuest() {
		t.Fatalf("expected anonymous guest entry, got %+v", entries[1])
	}
}

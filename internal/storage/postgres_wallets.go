package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/ridehail/internal/models"
)

// isUniqueViolation matches the schema backstop for ledger uniqueness
// (one DEBIT/CREDIT pair per ride, one entry per external reference).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type PostgresWalletStore struct {
	db *sql.DB
}

func NewPostgresWalletStore(db *sql.DB) *PostgresWalletStore {
	return &PostgresWalletStore{db: db}
}

// lockWallet reads the owner's wallet under FOR UPDATE, creating it with
// a zero balance if absent. Wallets are created lazily and never deleted.
func lockWallet(ctx context.Context, tx *sql.Tx, ownerID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRowContext(ctx, `
		SELECT id, owner_id, balance, created_at, updated_at
		FROM wallets WHERE owner_id = $1 FOR UPDATE`, ownerID).
		Scan(&w.ID, &w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now()
		w = models.Wallet{ID: NewID(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO wallets (id, owner_id, balance, created_at, updated_at)
			VALUES ($1,$2,0,$3,$4)`, w.ID, w.OwnerID, w.CreatedAt, w.UpdatedAt)
		if err != nil {
			return nil, mapErr(err)
		}
		return &w, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, t models.Transaction) error {
	var rideID, externalID any
	if t.RideID != "" {
		rideID = t.RideID
	}
	if t.ExternalID != "" {
		externalID = t.ExternalID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, wallet_id, amount, type, category, status, ride_id, external_id, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.WalletID, t.Amount, t.Type, t.Category, t.Status, rideID, externalID, t.Description, t.CreatedAt)
	return mapErr(err)
}

func (p *PostgresWalletStore) TransferFare(ctx context.Context, rideID, riderID, driverID string, amount int64) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rider, err := lockWallet(ctx, tx, riderID)
	if err != nil {
		return err
	}

	// The ride's ledger entries are the de-duplication key. Checked
	// under the rider row lock: concurrent transfers for one ride all
	// serialize on that row, so a second caller sees the first pair.
	var n int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE ride_id = $1 AND category IN ('RIDE_PAYMENT', 'RIDE_EARNING')`, rideID).Scan(&n)
	if err != nil {
		return mapErr(err)
	}
	if n > 0 {
		return ErrDuplicateSettlement
	}

	// The balance check precedes every balance write.
	if rider.Balance < amount {
		return ErrInsufficientFunds
	}
	driver, err := lockWallet(ctx, tx, driverID)
	if err != nil {
		return err
	}

	now := time.Now()
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = $2 WHERE id = $3`,
		amount, now, rider.ID); err != nil {
		return mapErr(err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = $2 WHERE id = $3`,
		amount, now, driver.ID); err != nil {
		return mapErr(err)
	}
	if err = insertEntry(ctx, tx, models.Transaction{
		ID: NewID(), WalletID: rider.ID, Amount: amount,
		Type: models.TxDebit, Category: models.CategoryRidePayment,
		Status: models.TxSuccess, RideID: rideID,
		Description: "Paid for ride #" + rideID, CreatedAt: now,
	}); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateSettlement
		}
		return err
	}
	if err = insertEntry(ctx, tx, models.Transaction{
		ID: NewID(), WalletID: driver.ID, Amount: amount,
		Type: models.TxCredit, Category: models.CategoryRideEarning,
		Status: models.TxSuccess, RideID: rideID,
		Description: "Earnings for ride #" + rideID, CreatedAt: now,
	}); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateSettlement
		}
		return err
	}
	return mapErr(tx.Commit())
}

func (p *PostgresWalletStore) TopUp(ctx context.Context, ownerID string, amount int64, externalRef string) (w *models.Wallet, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	w, err = lockWallet(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	// A redelivered webhook carries the same externalRef; replay is a no-op.
	var n int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE external_id = $1`, externalRef).Scan(&n); err != nil {
		return nil, mapErr(err)
	}
	if n > 0 {
		if err = tx.Commit(); err != nil {
			return nil, mapErr(err)
		}
		return w, nil
	}

	now := time.Now()
	w.Balance += amount
	w.UpdatedAt = now
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`,
		w.Balance, now, w.ID); err != nil {
		return nil, mapErr(err)
	}
	if err = insertEntry(ctx, tx, models.Transaction{
		ID: NewID(), WalletID: w.ID, Amount: amount,
		Type: models.TxCredit, Category: models.CategoryWalletTopUp,
		Status: models.TxSuccess, ExternalID: externalRef,
		Description: "Wallet top-up via gateway", CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return w, nil
}

func (p *PostgresWalletStore) Balance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE owner_id = $1`, ownerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, mapErr(err)
}

func (p *PostgresWalletStore) EntriesForRide(ctx context.Context, rideID string) ([]models.Transaction, error) {
	return p.queryEntries(ctx, `
		SELECT id, wallet_id, amount, type, category, status,
		       COALESCE(ride_id, ''), COALESCE(external_id, ''), description, created_at
		FROM transactions WHERE ride_id = $1 ORDER BY created_at`, rideID)
}

func (p *PostgresWalletStore) EntriesForOwner(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	return p.queryEntries(ctx, `
		SELECT t.id, t.wallet_id, t.amount, t.type, t.category, t.status,
		       COALESCE(t.ride_id, ''), COALESCE(t.external_id, ''), t.description, t.created_at
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.owner_id = $1 ORDER BY t.created_at DESC`, ownerID)
}

func (p *PostgresWalletStore) queryEntries(ctx context.Context, query string, arg any) ([]models.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Category, &t.Status,
			&t.RideID, &t.ExternalID, &t.Description, &t.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, t)
	}
	return out, mapErr(rows.Err())
}

package wallet

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
	"github.com/example/ridehail/internal/storage"
)

var (
	// ErrInvalidAmount: zero or negative amounts never reach the store.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds: the payer cannot cover the amount. Nothing
	// was written; the ride state is untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateSettlement: a transfer for this ride already exists in
	// the ledger. Callers treat it as a no-op success.
	ErrDuplicateSettlement = errors.New("ride already settled")
)

// Notifier pushes the new balance to the wallet owner after a committed
// credit or debit. Best effort.
type Notifier interface {
	WalletUpdated(ctx context.Context, ownerID string, balance int64)
}

// Ledger owns balances and the append-only transaction history. All
// multi-step mutations run inside the store's transactional boundary, so
// a caller never observes a half-applied transfer.
type Ledger struct {
	store    storage.WalletStore
	notifier Notifier
	logger   *slog.Logger
}

func NewLedger(store storage.WalletStore, notifier Notifier, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, notifier: notifier, logger: logger}
}

// TransferRideFare moves amount from the rider's wallet to the driver's
// and appends the DEBIT/CREDIT pair referencing rideID. Exactly once per
// ride: the rideID-scoped ledger entries are the de-duplication key.
func (l *Ledger) TransferRideFare(ctx context.Context, rideID, riderID, driverID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if rideID == "" || riderID == "" || driverID == "" {
		return errors.New("ride, rider and driver ids are required")
	}

	err := l.store.TransferFare(ctx, rideID, riderID, driverID, amount)
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, storage.ErrDuplicateSettlement):
		return ErrDuplicateSettlement
	case err != nil:
		return err
	}

	observability.SettlementsTotal.Inc()
	l.notifyBalance(ctx, riderID)
	l.notifyBalance(ctx, driverID)
	return nil
}

// TopUp credits a wallet from an externally verified funding event.
// Idempotent on externalRef: a redelivered webhook does not credit twice.
func (l *Ledger) TopUp(ctx context.Context, userID string, amount int64, externalRef string) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if userID == "" || externalRef == "" {
		return nil, errors.New("user id and external reference are required")
	}
	w, err := l.store.TopUp(ctx, userID, amount, externalRef)
	if err != nil {
		return nil, err
	}
	observability.TopUpsTotal.Inc()
	l.notifyBalance(ctx, userID)
	return w, nil
}

// Balance returns 0 for a wallet that has never been created.
func (l *Ledger) Balance(ctx context.Context, ownerID string) (int64, error) {
	return l.store.Balance(ctx, ownerID)
}

// Entries is the owner's passbook view of the ledger.
func (l *Ledger) Entries(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	return l.store.EntriesForOwner(ctx, ownerID)
}

func (l *Ledger) notifyBalance(ctx context.Context, ownerID string) {
	if l.notifier == nil {
		return
	}
	balance, err := l.store.Balance(ctx, ownerID)
	if err != nil {
		l.logger.Warn("balance read for notification failed", "owner_id", ownerID, "error", err)
		return
	}
	l.notifier.WalletUpdated(ctx, ownerID, balance)
}

package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/example/ridehail/internal/models"
)

// Sentinel outcomes of store operations. Domain packages translate these
// into their caller-facing errors with errors.Is.
var (
	// ErrNotFound: the referenced ride or wallet does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a conditional update found the row no longer in the
	// expected status. The caller re-reads and decides what the race means.
	ErrConflict = errors.New("status conflict")

	// ErrInsufficientFunds: the payer balance cannot cover the transfer.
	// Nothing was written.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateSettlement: ledger entries for this ride already exist.
	ErrDuplicateSettlement = errors.New("ride already settled")

	// ErrUnavailable: the backing store timed out or refused the
	// connection. Transient; the caller owns retry policy.
	ErrUnavailable = errors.New("store unavailable")
)

// RideStore defines persistence for rides. Implementations must make
// UpdateRideStatus a single conditional write so that two racing callers
// can never both move the same ride out of the same status.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// UpdateRideStatus moves the ride from `from` to `to` only if it is
	// still in `from`, returning ErrConflict otherwise. A non-empty
	// driverID is stored atomically with the status.
	UpdateRideStatus(ctx context.Context, id string, from, to models.RideStatus, driverID string) (*models.Ride, error)

	// ActiveRideForUser returns the user's current non-terminal ride as
	// rider or driver, or (nil, nil) when there is none.
	ActiveRideForUser(ctx context.Context, userID string) (*models.Ride, error)
	RidesForUser(ctx context.Context, userID string) ([]*models.Ride, error)

	SetSettlement(ctx context.Context, rideID string, s models.SettlementStatus) error
}

// WalletStore defines persistence for wallets and the ledger. The
// multi-step operations commit or roll back as a unit.
type WalletStore interface {
	// TransferFare debits the rider and credits the driver by amount and
	// appends the two ledger entries, all atomically. Returns
	// ErrInsufficientFunds before any write when the rider cannot pay,
	// and ErrDuplicateSettlement when entries for rideID already exist.
	TransferFare(ctx context.Context, rideID, riderID, driverID string, amount int64) error

	// TopUp credits ownerID by amount, creating the wallet if absent.
	// Idempotent on externalRef: a replay returns the current wallet
	// without crediting again.
	TopUp(ctx context.Context, ownerID string, amount int64, externalRef string) (*models.Wallet, error)

	// Balance returns 0 for a wallet that has never been created.
	Balance(ctx context.Context, ownerID string) (int64, error)

	EntriesForRide(ctx context.Context, rideID string) ([]models.Transaction, error)
	EntriesForOwner(ctx context.Context, ownerID string) ([]models.Transaction, error)
}

// NewID returns a random 16-hex-char identifier.
func NewID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

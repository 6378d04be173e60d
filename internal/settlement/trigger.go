// Package settlement watches ride transitions and runs the wallet
// transfer when a ride completes.
package settlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
	"github.com/example/ridehail/internal/wallet"
)

// Ledger is the slice of the wallet ledger the trigger needs.
type Ledger interface {
	TransferRideFare(ctx context.Context, rideID, riderID, driverID string, amount int64) error
}

// Recorder stores the settlement outcome on the ride.
type Recorder interface {
	SetSettlement(ctx context.Context, rideID string, s models.SettlementStatus) error
}

// Trigger fires the fare transfer exactly once when a ride lands in
// COMPLETED. It only ever reads rides already durably committed, so the
// ordering between ride status and wallet state is causal, not locked.
type Trigger struct {
	ledger Ledger
	rides  Recorder
	logger *slog.Logger
}

func NewTrigger(ledger Ledger, rides Recorder, logger *slog.Logger) *Trigger {
	return &Trigger{ledger: ledger, rides: rides, logger: logger}
}

// RideTransitioned implements ride.Observer.
func (t *Trigger) RideTransitioned(ctx context.Context, from models.RideStatus, r *models.Ride) {
	if r.Status != models.StatusCompleted {
		return
	}

	// A free ride has nothing to move; the ledger stays empty.
	if r.Price == 0 {
		t.record(ctx, r.ID, models.SettlementPaid)
		return
	}

	err := t.ledger.TransferRideFare(ctx, r.ID, r.RiderID, r.DriverID, r.Price)
	switch {
	case err == nil:
		t.record(ctx, r.ID, models.SettlementPaid)
	case errors.Is(err, wallet.ErrDuplicateSettlement):
		// Replayed completion; the ledger already holds the pair.
		t.record(ctx, r.ID, models.SettlementPaid)
	default:
		// The trip already happened, so the ride stays COMPLETED. The
		// failure is flagged for out-of-band reconciliation and never
		// retried automatically.
		observability.SettlementFailuresTotal.Inc()
		t.logger.Warn("settlement failed",
			"ride_id", r.ID, "rider_id", r.RiderID, "driver_id", r.DriverID,
			"amount", r.Price, "error", err)
		t.record(ctx, r.ID, models.SettlementFailed)
	}
}

func (t *Trigger) record(ctx context.Context, rideID string, s models.SettlementStatus) {
	if err := t.rides.SetSettlement(ctx, rideID, s); err != nil {
		t.logger.Error("settlement status write failed", "ride_id", rideID, "status", s, "error", err)
	}
}

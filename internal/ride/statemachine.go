package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
	"github.com/example/ridehail/internal/storage"
)

// legalEdges is the ride lifecycle graph. CANCELLED is reachable from
// every non-terminal status; COMPLETED only from IN_PROGRESS.
var legalEdges = map[models.RideStatus][]models.RideStatus{
	models.StatusSearching:  {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusArrived, models.StatusCancelled},
	models.StatusArrived:    {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

func canTransition(from, to models.RideStatus) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Notifier receives the new ride snapshot after every committed
// transition. Delivery is best effort; implementations must never fail
// the mutation that triggered them.
type Notifier interface {
	RideUpdated(ctx context.Context, r *models.Ride)
}

// Observer is called synchronously after a transition has committed and
// the notifier has been handed the snapshot. The settlement trigger
// hangs off this hook.
type Observer interface {
	RideTransitioned(ctx context.Context, from models.RideStatus, r *models.Ride)
}

// Machine enforces the lifecycle graph against the ride store. The
// conditional update inside the store is the mutual-exclusion point, so
// the machine itself holds no locks and is safe to run in any number of
// processes.
type Machine struct {
	store     storage.RideStore
	notifier  Notifier
	observers []Observer
	logger    *slog.Logger
}

func NewMachine(store storage.RideStore, notifier Notifier, logger *slog.Logger, observers ...Observer) *Machine {
	return &Machine{store: store, notifier: notifier, observers: observers, logger: logger}
}

func (m *Machine) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := m.store.GetRide(ctx, rideID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return r, err
}

// Transition moves the ride to target. driverID is required for the
// ACCEPTED edge, where it is stored atomically with the status; on every
// other edge a non-empty driverID must match the assigned driver.
// Re-requesting the ride's current status is a no-op success so that
// at-least-once clients can retry safely.
func (m *Machine) Transition(ctx context.Context, rideID string, target models.RideStatus, driverID string) (*models.Ride, error) {
	r, err := m.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if r.Status == target {
		if driverID != "" && r.DriverID != driverID {
			return nil, ErrDriverMismatch
		}
		return r, nil
	}

	var setDriver string
	if target == models.StatusAccepted {
		if driverID == "" {
			return nil, fmt.Errorf("%w: accept requires a driver", ErrInvalidTransition)
		}
		setDriver = driverID
	} else if driverID != "" && r.DriverID != driverID {
		return nil, ErrDriverMismatch
	}

	if !canTransition(r.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, target)
	}

	updated, err := m.store.UpdateRideStatus(ctx, rideID, r.Status, target, setDriver)
	if errors.Is(err, storage.ErrConflict) {
		// Lost a race. Re-read once: if the ride already landed on the
		// target this was a duplicate delivery, otherwise the edge we
		// wanted no longer exists.
		cur, getErr := m.Get(ctx, rideID)
		if getErr != nil {
			return nil, getErr
		}
		if cur.Status == target && (driverID == "" || cur.DriverID == driverID) {
			return cur, nil
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, target)
	}
	if err != nil {
		return nil, err
	}

	observability.RideTransitionsTotal.WithLabelValues(string(target)).Inc()
	from := r.Status

	// Post-commit fan-out. The notifier cannot roll the transition back.
	if m.notifier != nil {
		m.notifier.RideUpdated(ctx, updated)
	}
	for _, o := range m.observers {
		o.RideTransitioned(ctx, from, updated)
	}
	return updated, nil
}

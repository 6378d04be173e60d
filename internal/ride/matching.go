package ride

import (
	"context"
	"errors"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
	"github.com/example/ridehail/internal/storage"
)

// Coordinator serializes competing accept attempts for a ride. The
// policy is first-accept-wins: of any number of concurrent calls exactly
// one observes SEARCHING and claims the ride, and every other caller
// gets ErrAlreadyAccepted so driver apps can dismiss the offer quietly.
// Serialization rides on the store's conditional update, not on any
// in-process lock, so multiple instances behave identically.
type Coordinator struct {
	machine *Machine
}

func NewCoordinator(machine *Machine) *Coordinator {
	return &Coordinator{machine: machine}
}

func (c *Coordinator) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	r, err := c.machine.Transition(ctx, rideID, models.StatusAccepted, driverID)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, storage.ErrUnavailable) {
		return nil, err
	}
	// Anything else means the ride was observed out of SEARCHING: a
	// faster driver, a cancel, or a stale offer. All the same to the
	// caller.
	observability.AcceptConflictsTotal.Inc()
	return nil, ErrAlreadyAccepted
}

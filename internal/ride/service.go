package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
	"github.com/example/ridehail/internal/storage"
)

// Quoter prices a ride when the request does not carry a price. The
// flat fare comes from the pricing package; the quoted value is stored
// verbatim on the ride and never recomputed.
type Quoter interface {
	Quote(ctx context.Context, pickup, drop models.Coord, rideType string) (int64, error)
}

// Broadcaster announces a newly created ride to idle drivers.
type Broadcaster interface {
	RideRequested(ctx context.Context, r *models.Ride)
}

// EventPublisher mirrors committed lifecycle changes onto the event
// pipeline. Best effort; failures are logged and swallowed.
type EventPublisher interface {
	PublishRideEvent(ctx context.Context, r *models.Ride) error
}

// Service is the RideService surface the transport layer talks to.
type Service struct {
	store       storage.RideStore
	machine     *Machine
	coordinator *Coordinator
	broadcast   Broadcaster
	quoter      Quoter
	events      EventPublisher
	logger      *slog.Logger
}

func NewService(store storage.RideStore, machine *Machine, coordinator *Coordinator,
	broadcast Broadcaster, quoter Quoter, events EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		machine:     machine,
		coordinator: coordinator,
		broadcast:   broadcast,
		quoter:      quoter,
		events:      events,
		logger:      logger,
	}
}

// RequestRide creates a SEARCHING ride for the rider and broadcasts it
// to available drivers.
func (s *Service) RequestRide(ctx context.Context, req models.RideRequest, riderID string) (*models.Ride, error) {
	if riderID == "" {
		return nil, errors.New("missing rider id")
	}
	if req.PickupAddr == "" || req.DropAddr == "" {
		return nil, errors.New("pickup and drop addresses are required")
	}
	if req.Price < 0 {
		return nil, errors.New("price must not be negative")
	}

	price := req.Price
	if price == 0 && s.quoter != nil {
		quoted, err := s.quoter.Quote(ctx, req.Pickup, req.Drop, req.RideType)
		if err != nil {
			return nil, fmt.Errorf("quote fare: %w", err)
		}
		price = quoted
	}

	now := time.Now()
	r := &models.Ride{
		ID:         storage.NewID(),
		RiderID:    riderID,
		Pickup:     req.Pickup,
		Drop:       req.Drop,
		PickupAddr: req.PickupAddr,
		DropAddr:   req.DropAddr,
		Price:      price,
		Status:     models.StatusSearching,
		Settlement: models.SettlementNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	observability.RidesCreatedTotal.Inc()

	if s.broadcast != nil {
		s.broadcast.RideRequested(ctx, r)
	}
	s.publishEvent(ctx, r)
	return r, nil
}

// AcceptRide assigns the first accepting driver. Losers of the race get
// ErrAlreadyAccepted.
func (s *Service) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	r, err := s.coordinator.Accept(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, r)
	return r, nil
}

// AdvanceStatus applies a driver-side progression: ARRIVED, IN_PROGRESS
// or COMPLETED. actorID must be the assigned driver.
func (s *Service) AdvanceStatus(ctx context.Context, rideID string, target models.RideStatus, actorID string) (*models.Ride, error) {
	switch target {
	case models.StatusArrived, models.StatusInProgress, models.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: %s is not a progression target", ErrInvalidTransition, target)
	}
	r, err := s.machine.Transition(ctx, rideID, target, actorID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, r)
	return r, nil
}

// CancelRide short-circuits any non-terminal ride to CANCELLED. Either
// party may cancel; authorization is the gateway's problem.
func (s *Service) CancelRide(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := s.machine.Transition(ctx, rideID, models.StatusCancelled, "")
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, r)
	return r, nil
}

// ActiveRide returns the user's current non-terminal ride, or nil.
func (s *Service) ActiveRide(ctx context.Context, userID string) (*models.Ride, error) {
	return s.store.ActiveRideForUser(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID string) ([]*models.Ride, error) {
	return s.store.RidesForUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.machine.Get(ctx, rideID)
}

func (s *Service) publishEvent(ctx context.Context, r *models.Ride) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRideEvent(ctx, r); err != nil {
		s.logger.Warn("ride event publish failed", "ride_id", r.ID, "error", err)
	}
}

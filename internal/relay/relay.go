// Package relay fans ride and wallet state changes out to the right
// realtime channels and replays current state to reconnecting clients.
package relay

import (
	"context"
	"log/slog"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
)

// Channel names mirror the client protocol: one broadcast channel for
// new rides, and per-ride channels addressed to the rider and the
// assigned driver.
const ChannelNewRides = "new-ride-available"

func RideStatusChannel(rideID string) string     { return "ride-status-" + rideID }
func DriverLocationChannel(rideID string) string { return "driver-location-" + rideID }
func WalletChannel(ownerID string) string        { return "wallet-" + ownerID }

// Transport is the realtime channel surface provided by the transport
// layer (the websocket hub in this repo). Membership of a channel is a
// transport concern; the relay only decides who should be a member.
type Transport interface {
	Publish(channel string, payload any) error
	PublishTo(identity, channel string, payload any) error
	Join(identity, channel string)
	Leave(identity, channel string)
}

// Pusher is an optional out-of-band delivery path (HTTP push gateway)
// for clients without a live socket.
type Pusher interface {
	Notify(ctx context.Context, channel string, payload any) error
}

// ActiveRides is the lookup used for session recovery.
type ActiveRides interface {
	ActiveRideForUser(ctx context.Context, userID string) (*models.Ride, error)
}

// Locations serves the last known driver position for an active ride.
type Locations interface {
	LastLocation(ctx context.Context, rideID string) (*models.LocationUpdate, error)
}

type Relay struct {
	transport Transport
	push      Pusher
	rides     ActiveRides
	locations Locations
	logger    *slog.Logger
}

func New(transport Transport, push Pusher, rides ActiveRides, locations Locations, logger *slog.Logger) *Relay {
	return &Relay{transport: transport, push: push, rides: rides, locations: locations, logger: logger}
}

// RideRequested announces a new SEARCHING ride on the broadcast channel
// and subscribes the rider to the ride's own channels.
func (r *Relay) RideRequested(ctx context.Context, ride *models.Ride) {
	r.joinRideChannels(ride.RiderID, ride.ID)
	r.publish(ChannelNewRides, ride)
	if r.push != nil {
		if err := r.push.Notify(ctx, ChannelNewRides, ride); err != nil {
			r.logger.Warn("push notify failed", "ride_id", ride.ID, "error", err)
		}
	}
}

// RideUpdated delivers the committed snapshot on the per-ride channel.
// Implements ride.Notifier.
func (r *Relay) RideUpdated(ctx context.Context, ride *models.Ride) {
	if ride.DriverID != "" {
		r.joinRideChannels(ride.DriverID, ride.ID)
	}
	r.publish(RideStatusChannel(ride.ID), ride)
	if ride.Status.Terminal() {
		r.leaveRideChannels(ride.RiderID, ride.ID)
		if ride.DriverID != "" {
			r.leaveRideChannels(ride.DriverID, ride.ID)
		}
	}
}

// DriverLocation forwards a position report to the ride's subscribers.
func (r *Relay) DriverLocation(ctx context.Context, loc models.LocationUpdate) {
	r.publish(DriverLocationChannel(loc.RideID), loc)
}

// WalletUpdated pushes the new balance to its owner. Implements
// wallet.Notifier.
func (r *Relay) WalletUpdated(ctx context.Context, ownerID string, balance int64) {
	payload := map[string]any{"owner_id": ownerID, "balance": balance}
	if err := r.transport.PublishTo(ownerID, WalletChannel(ownerID), payload); err != nil {
		r.logger.Debug("wallet push skipped", "owner_id", ownerID, "error", err)
		return
	}
	observability.RelayDeliveriesTotal.Inc()
}

// Recover is the session-recovery hook: on (re)connection the client's
// active ride, if any, is replayed immediately so it never renders a
// stale status. Replaying the same snapshot twice is harmless.
func (r *Relay) Recover(ctx context.Context, identity string) {
	ride, err := r.rides.ActiveRideForUser(ctx, identity)
	if err != nil {
		r.logger.Warn("session recovery lookup failed", "identity", identity, "error", err)
		return
	}
	if ride == nil {
		return
	}
	r.joinRideChannels(identity, ride.ID)
	if err := r.transport.PublishTo(identity, RideStatusChannel(ride.ID), ride); err != nil {
		r.logger.Debug("snapshot replay skipped", "identity", identity, "error", err)
		return
	}
	observability.RelayDeliveriesTotal.Inc()

	if r.locations == nil {
		return
	}
	loc, err := r.locations.LastLocation(ctx, ride.ID)
	if err != nil || loc == nil {
		return
	}
	if err := r.transport.PublishTo(identity, DriverLocationChannel(ride.ID), loc); err == nil {
		observability.RelayDeliveriesTotal.Inc()
	}
}

func (r *Relay) publish(channel string, payload any) {
	if err := r.transport.Publish(channel, payload); err != nil {
		r.logger.Warn("relay publish failed", "channel", channel, "error", err)
		return
	}
	observability.RelayDeliveriesTotal.Inc()
}

func (r *Relay) joinRideChannels(identity, rideID string) {
	r.transport.Join(identity, RideStatusChannel(rideID))
	r.transport.Join(identity, DriverLocationChannel(rideID))
}

func (r *Relay) leaveRideChannels(identity, rideID string) {
	r.transport.Leave(identity, RideStatusChannel(rideID))
	r.transport.Leave(identity, DriverLocationChannel(rideID))
}

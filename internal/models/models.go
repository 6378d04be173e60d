package models

import "time"

// RideStatus is the canonical ride lifecycle enum. The values are stored
// verbatim in Postgres and on the wire, so the casing never changes.
type RideStatus string

const (
	StatusSearching  RideStatus = "SEARCHING"
	StatusAccepted   RideStatus = "ACCEPTED"
	StatusArrived    RideStatus = "ARRIVED"
	StatusInProgress RideStatus = "IN_PROGRESS"
	StatusCompleted  RideStatus = "COMPLETED"
	StatusCancelled  RideStatus = "CANCELLED"
)

// Terminal reports whether no further transition may be applied.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SettlementStatus tracks the outcome of the wallet transfer for a
// completed ride: NONE until completion, then PAID or FAILED.
type SettlementStatus string

const (
	SettlementNone   SettlementStatus = "NONE"
	SettlementPaid   SettlementStatus = "PAID"
	SettlementFailed SettlementStatus = "FAILED"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Ride struct {
	ID         string           `json:"id"`
	RiderID    string           `json:"rider_id"`
	DriverID   string           `json:"driver_id,omitempty"` // empty until ACCEPTED
	Pickup     Coord            `json:"pickup"`
	Drop       Coord            `json:"drop"`
	PickupAddr string           `json:"pickup_addr"`
	DropAddr   string           `json:"drop_addr"`
	Price      int64            `json:"price"` // smallest currency unit
	Status     RideStatus       `json:"status"`
	Settlement SettlementStatus `json:"settlement"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// RideRequest is the rider-facing DTO for creating a ride. Price is
// optional; when zero the server quotes a flat fare from the distance.
type RideRequest struct {
	Pickup     Coord  `json:"pickup"`
	Drop       Coord  `json:"drop"`
	PickupAddr string `json:"pickup_addr"`
	DropAddr   string `json:"drop_addr"`
	Price      int64  `json:"price,omitempty"`
	RideType   string `json:"ride_type,omitempty"`
}

type Wallet struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"` // smallest currency unit, never negative
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TxType string

const (
	TxCredit TxType = "CREDIT"
	TxDebit  TxType = "DEBIT"
)

type TxCategory string

const (
	CategoryRidePayment TxCategory = "RIDE_PAYMENT"
	CategoryRideEarning TxCategory = "RIDE_EARNING"
	CategoryWalletTopUp TxCategory = "WALLET_TOPUP"
)

type TxStatus string

const (
	TxSuccess TxStatus = "SUCCESS"
	TxFailed  TxStatus = "FAILED"
)

// Transaction is one immutable ledger entry. The ledger is append-only;
// nothing in the system updates or deletes a row once written.
type Transaction struct {
	ID          string     `json:"id"`
	WalletID    string     `json:"wallet_id"`
	Amount      int64      `json:"amount"` // always positive; Type carries the sign
	Type        TxType     `json:"type"`
	Category    TxCategory `json:"category"`
	Status      TxStatus   `json:"status"`
	RideID      string     `json:"ride_id,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"` // gateway reference for top-ups
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LocationUpdate is a driver position report tied to an active ride. It
// flows driver -> server -> per-ride channel, and through Kafka into the
// last-known-location store used for session recovery.
type LocationUpdate struct {
	RideID   string  `json:"ride_id"`
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Heading  float64 `json:"heading"`
}

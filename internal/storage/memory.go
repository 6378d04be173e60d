package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ridehail/internal/models"
)

// MemoryRideStore keeps rides in a map. Used by tests and as the
// fallback when no PG_DSN is configured.
type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryRideStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryRideStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRideStore) UpdateRideStatus(ctx context.Context, id string, from, to models.RideStatus, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != from {
		return nil, ErrConflict
	}
	r.Status = to
	if driverID != "" {
		r.DriverID = driverID
	}
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryRideStore) ActiveRideForUser(ctx context.Context, userID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *models.Ride
	for _, r := range m.rides {
		if r.Status.Terminal() {
			continue
		}
		if r.RiderID != userID && r.DriverID != userID {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *MemoryRideStore) RidesForUser(ctx context.Context, userID string) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.RiderID == userID || r.DriverID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRideStore) SetSettlement(ctx context.Context, rideID string, s models.SettlementStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	r.Settlement = s
	r.UpdatedAt = time.Now()
	return nil
}

// MemoryWalletStore mirrors the Postgres wallet store semantics with a
// single mutex guarding balances and the ledger together, so the
// transfer's all-or-nothing property holds trivially.
type MemoryWalletStore struct {
	mu      sync.Mutex
	wallets map[string]*models.Wallet // keyed by owner id
	ledger  []models.Transaction
}

func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{wallets: make(map[string]*models.Wallet)}
}

func (m *MemoryWalletStore) walletFor(ownerID string) *models.Wallet {
	w, ok := m.wallets[ownerID]
	if !ok {
		now := time.Now()
		w = &models.Wallet{ID: NewID(), OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
		m.wallets[ownerID] = w
	}
	return w
}

func (m *MemoryWalletStore) TransferFare(ctx context.Context, rideID, riderID, driverID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.ledger {
		if t.RideID == rideID && (t.Category == models.CategoryRidePayment || t.Category == models.CategoryRideEarning) {
			return ErrDuplicateSettlement
		}
	}
	rider := m.walletFor(riderID)
	if rider.Balance < amount {
		return ErrInsufficientFunds
	}
	driver := m.walletFor(driverID)
	now := time.Now()
	rider.Balance -= amount
	rider.UpdatedAt = now
	driver.Balance += amount
	driver.UpdatedAt = now
	m.ledger = append(m.ledger,
		models.Transaction{
			ID: NewID(), WalletID: rider.ID, Amount: amount,
			Type: models.TxDebit, Category: models.CategoryRidePayment,
			Status: models.TxSuccess, RideID: rideID,
			Description: "Paid for ride #" + rideID, CreatedAt: now,
		},
		models.Transaction{
			ID: NewID(), WalletID: driver.ID, Amount: amount,
			Type: models.TxCredit, Category: models.CategoryRideEarning,
			Status: models.TxSuccess, RideID: rideID,
			Description: "Earnings for ride #" + rideID, CreatedAt: now,
		},
	)
	return nil
}

func (m *MemoryWalletStore) TopUp(ctx context.Context, ownerID string, amount int64, externalRef string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.walletFor(ownerID)
	for _, t := range m.ledger {
		if t.ExternalID != "" && t.ExternalID == externalRef {
			cp := *w
			return &cp, nil
		}
	}
	now := time.Now()
	w.Balance += amount
	w.UpdatedAt = now
	m.ledger = append(m.ledger, models.Transaction{
		ID: NewID(), WalletID: w.ID, Amount: amount,
		Type: models.TxCredit, Category: models.CategoryWalletTopUp,
		Status: models.TxSuccess, ExternalID: externalRef,
		Description: "Wallet top-up via gateway", CreatedAt: now,
	})
	cp := *w
	return &cp, nil
}

func (m *MemoryWalletStore) Balance(ctx context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[ownerID]; ok {
		return w.Balance, nil
	}
	return 0, nil
}

func (m *MemoryWalletStore) EntriesForRide(ctx context.Context, rideID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Transaction, 0, 2)
	for _, t := range m.ledger {
		if t.RideID == rideID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryWalletStore) EntriesForOwner(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]models.Transaction, 0)
	for _, t := range m.ledger {
		if t.WalletID == w.ID {
			out = append(out, t)
		}
	}
	return out, nil
}

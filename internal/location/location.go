// Package location stores the last known driver position per ride,
// written by the Kafka consumer and read back during session recovery.
package location

import (
	"context"
	"sync"

	"github.com/example/ridehail/internal/models"
)

// Store holds one latest position per active ride. LastLocation returns
// (nil, nil) when no position has been reported yet.
type Store interface {
	Upsert(ctx context.Context, loc models.LocationUpdate) error
	LastLocation(ctx context.Context, rideID string) (*models.LocationUpdate, error)
}

// MemoryStore is the in-process fallback used when Redis is not
// configured, and the test double.
type MemoryStore struct {
	mu   sync.RWMutex
	locs map[string]models.LocationUpdate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locs: make(map[string]models.LocationUpdate)}
}

func (m *MemoryStore) Upsert(ctx context.Context, loc models.LocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs[loc.RideID] = loc
	return nil
}

func (m *MemoryStore) LastLocation(ctx context.Context, rideID string) (*models.LocationUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locs[rideID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

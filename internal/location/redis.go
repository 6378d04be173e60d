package location

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ridehail/internal/models"
)

// positions expire so a ride abandoned mid-trip does not pin stale
// coordinates forever.
const positionTTL = time.Hour

// RedisStore keeps the latest position per ride in a hash. Shared
// between the server (reads for recovery) and the consumer (writes).
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

// NewRedisStoreFromClient wraps an existing client (used by the consumer,
// which also pings it for readiness).
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{client: c}
}

func locKey(rideID string) string { return "ride:loc:" + rideID }

func (r *RedisStore) Upsert(ctx context.Context, loc models.LocationUpdate) error {
	key := locKey(loc.RideID)
	if err := r.client.HSet(ctx, key, map[string]interface{}{
		"driver_id": loc.DriverID,
		"lat":       strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		"lng":       strconv.FormatFloat(loc.Lng, 'f', -1, 64),
		"heading":   strconv.FormatFloat(loc.Heading, 'f', -1, 64),
		"updated":   time.Now().Format(time.RFC3339),
	}).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, positionTTL).Err()
}

func (r *RedisStore) LastLocation(ctx context.Context, rideID string) (*models.LocationUpdate, error) {
	m, err := r.client.HGetAll(ctx, locKey(rideID)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	loc := models.LocationUpdate{RideID: rideID, DriverID: m["driver_id"]}
	loc.Lat, _ = strconv.ParseFloat(m["lat"], 64)
	loc.Lng, _ = strconv.ParseFloat(m["lng"], 64)
	loc.Heading, _ = strconv.ParseFloat(m["heading"], 64)
	return &loc, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

// Package pricing computes the flat fare stored on a ride at request
// time. Fares are base + per-km in the smallest currency unit; distance
// comes from the routing service when configured, otherwise from a
// straight-line estimate.
package pricing

import (
	"context"
	"math"

	"github.com/example/ridehail/internal/models"
)

type Fare struct {
	Base  int64 // smallest currency unit
	PerKm int64
}

type FareTable map[string]Fare

// DefaultFares mirrors the published ride types.
func DefaultFares() FareTable {
	return FareTable{
		"moto":    {Base: 2000, PerKm: 1000},
		"go":      {Base: 4000, PerKm: 1500},
		"premier": {Base: 6000, PerKm: 2200},
	}
}

const defaultRideType = "go"

// Router resolves road distance between two points. Optional; quoting
// falls back to haversine when it is absent or fails.
type Router interface {
	DistanceKm(ctx context.Context, from, to models.Coord) (float64, error)
}

type Quoter struct {
	fares  FareTable
	router Router
	cache  *Cache // optional distance cache
}

func NewQuoter(fares FareTable, router Router, cache *Cache) *Quoter {
	if fares == nil {
		fares = DefaultFares()
	}
	return &Quoter{fares: fares, router: router, cache: cache}
}

// Quote returns the flat fare for the trip. Unknown ride types fall back
// to the default tier.
func (q *Quoter) Quote(ctx context.Context, pickup, drop models.Coord, rideType string) (int64, error) {
	fare, ok := q.fares[rideType]
	if !ok {
		fare = q.fares[defaultRideType]
	}
	km := q.distanceKm(ctx, pickup, drop)
	return fare.Base + int64(math.Round(km*float64(fare.PerKm))), nil
}

func (q *Quoter) distanceKm(ctx context.Context, from, to models.Coord) float64 {
	if q.cache != nil {
		if km, ok := q.cache.Get(from, to); ok {
			return km
		}
	}
	if q.router != nil {
		if km, err := q.router.DistanceKm(ctx, from, to); err == nil {
			if q.cache != nil {
				q.cache.Set(from, to, km)
			}
			return km
		}
	}
	return HaversineKm(from, to)
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(a, b models.Coord) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

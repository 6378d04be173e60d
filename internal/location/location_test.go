package location

import (
	"context"
	"testing"

	"github.com/example/ridehail/internal/models"
)

func TestMemoryStoreUpsertAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.LastLocation(ctx, "ride1")
	if err != nil || got != nil {
		t.Fatalf("empty store: loc=%+v err=%v", got, err)
	}

	first := models.LocationUpdate{RideID: "ride1", DriverID: "d1", Lat: 6.5, Lng: 3.4, Heading: 90}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := models.LocationUpdate{RideID: "ride1", DriverID: "d1", Lat: 6.6, Lng: 3.5, Heading: 180}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err = s.LastLocation(ctx, "ride1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.Lat != 6.6 || got.Heading != 180 {
		t.Fatalf("expected the latest position, got %+v", got)
	}
}

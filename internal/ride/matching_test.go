package ride

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/storage"
)

func TestAcceptFirstDriverWins(t *testing.T) {
	store := storage.NewMemoryRideStore()
	m := NewMachine(store, &recordingNotifier{}, testLogger())
	c := NewCoordinator(m)
	r := seedRide(t, store, models.StatusSearching, "")
	ctx := context.Background()

	got, err := c.Accept(ctx, r.ID, "d1")
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if got.Status != models.StatusAccepted || got.DriverID != "d1" {
		t.Fatalf("unexpected ride after accept: %+v", got)
	}

	if _, err := c.Accept(ctx, r.ID, "d2"); !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("second driver: expected ErrAlreadyAccepted, got %v", err)
	}
}

func TestAcceptReplaySameDriver(t *testing.T) {
	store := storage.NewMemoryRideStore()
	c := NewCoordinator(NewMachine(store, &recordingNotifier{}, testLogger()))
	r := seedRide(t, store, models.StatusSearching, "")
	ctx := context.Background()

	if _, err := c.Accept(ctx, r.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, err := c.Accept(ctx, r.ID, "d1")
	if err != nil {
		t.Fatalf("replay by winner must be a no-op success, got %v", err)
	}
	if got.DriverID != "d1" {
		t.Fatalf("driver changed on replay: %q", got.DriverID)
	}
}

func TestAcceptUnknownRide(t *testing.T) {
	c := NewCoordinator(NewMachine(storage.NewMemoryRideStore(), &recordingNotifier{}, testLogger()))
	if _, err := c.Accept(context.Background(), "missing", "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptCancelledRide(t *testing.T) {
	store := storage.NewMemoryRideStore()
	c := NewCoordinator(NewMachine(store, &recordingNotifier{}, testLogger()))
	r := seedRide(t, store, models.StatusCancelled, "")

	if _, err := c.Accept(context.Background(), r.ID, "d1"); !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("expected ErrAlreadyAccepted for terminal ride, got %v", err)
	}
}

// Many drivers race for one ride; exactly one wins and the ride ends up
// assigned to that winner.
func TestAcceptConcurrentRace(t *testing.T) {
	store := storage.NewMemoryRideStore()
	c := NewCoordinator(NewMachine(store, &recordingNotifier{}, testLogger()))
	r := seedRide(t, store, models.StatusSearching, "")
	ctx := context.Background()

	const drivers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := c.Accept(ctx, r.ID, "driver-"+strconv.Itoa(n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, got.DriverID)
			case errors.Is(err, ErrAlreadyAccepted):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d (%v)", len(winners), winners)
	}
	if losers != drivers-1 {
		t.Fatalf("expected %d losers, got %d", drivers-1, losers)
	}
	final, err := store.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != models.StatusAccepted || final.DriverID != winners[0] {
		t.Fatalf("stored ride disagrees with winner: %+v vs %s", final, winners[0])
	}
}

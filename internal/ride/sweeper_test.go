package ride

import (
	"context"
	"testing"
	"time"

	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/notify"
	"github.com/example/commute-rides/internal/storage"
)

func seedActiveRide(t *testing.T, store storage.RideStore, id, date, arrival string) {
	t.Helper()
	err := store.Create(context.Background(), &models.Ride{
		ID: id, OwnerID: "owner1",
		Origin: "A", Destination: "B",
		Date: date, ArrivalTime: arrival,
		TotalSeats: 4, AvailableSeats: 4,
		Status:    models.StatusActive,
		JoinedIDs: []string{}, PendingIDs: []string{},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed ride: %v", err)
	}
}

func sweeperAt(store storage.RideStore, now time.Time) *Sweeper {
	return &Sweeper{
		Store:  store,
		Hook:   notify.NewHook(discardLogger()),
		Logger: discardLogger(),
		Now:    func() time.Time { return now },
	}
}

func TestSweepExpiryBoundary(t *testing.T) {
	store := storage.NewMemoryStore()
	seedActiveRide(t, store, "r1", "2026-09-01", "10:00")

	// one minute before arrival: still active
	s := sweeperAt(store, time.Date(2026, 9, 1, 9, 59, 0, 0, time.UTC))
	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no expiries before arrival, swept %d", n)
	}

	// exactly at arrival: expired
	s = sweeperAt(store, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	n, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expiry at arrival instant, swept %d", n)
	}
	r, _ := store.Get(context.Background(), "r1")
	if r.Status != models.StatusExpired {
		t.Fatalf("expected Expired, got %s", r.Status)
	}
}

func TestSweepExpiresPastDates(t *testing.T) {
	store := storage.NewMemoryStore()
	seedActiveRide(t, store, "old", "2026-08-30", "23:59")
	seedActiveRide(t, store, "future", "2026-09-05", "08:00")

	s := sweeperAt(store, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly the past-dated ride to expire, swept %d", n)
	}
	if r, _ := store.Get(context.Background(), "future"); r.Status != models.StatusActive {
		t.Fatalf("future ride must stay active, got %s", r.Status)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	seedActiveRide(t, store, "r1", "2026-08-30", "09:00")
	s := sweeperAt(store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))

	if n, _ := s.Sweep(context.Background()); n != 1 {
		t.Fatalf("first sweep should expire the ride, swept %d", n)
	}
	if n, _ := s.Sweep(context.Background()); n != 0 {
		t.Fatalf("second sweep must be a no-op, swept %d", n)
	}
}

func TestSweepLeavesMalformedSchedulesAlone(t *testing.T) {
	store := storage.NewMemoryStore()
	seedActiveRide(t, store, "broken", "not-a-date", "09:00")

	s := sweeperAt(store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	if n, _ := s.Sweep(context.Background()); n != 0 {
		t.Fatalf("malformed schedule must not be swept, swept %d", n)
	}
}

func TestSweepNotifiesJoinedPassengers(t *testing.T) {
	store := storage.NewMemoryStore()
	err := store.Create(context.Background(), &models.Ride{
		ID: "r1", OwnerID: "owner1",
		Origin: "A", Destination: "B",
		Date: "2026-08-30", ArrivalTime: "09:00",
		TotalSeats: 4, AvailableSeats: 2,
		JoinedIDs:   []string{"e1", "e2"},
		JoinedSeats: map[string]int{"e1": 1, "e2": 1},
		PendingIDs:  []string{},
		Status:      models.StatusActive,
		CreatedAt:   time.Now(), UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got := make(chan models.Notification, 4)
	s := sweeperAt(store, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	s.Hook = notify.NewHook(discardLogger(), recorder(got))

	if n, _ := s.Sweep(context.Background()); n != 1 {
		t.Fatal("expected the ride to expire")
	}
	recipients := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case n := <-got:
			recipients[n.RecipientID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("missing closure notice, got %v", recipients)
		}
	}
	if !recipients["e1"] || !recipients["e2"] {
		t.Fatalf("expected notices for e1 and e2, got %v", recipients)
	}
}

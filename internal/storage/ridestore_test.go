package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/commute-rides/internal/models"
)

func newRide(id, owner string, status models.RideStatus, createdAt time.Time) *models.Ride {
	return &models.Ride{
		ID: id, OwnerID: owner,
		Origin: "A", Destination: "B",
		Date: "2026-09-02", ArrivalTime: "09:00",
		TotalSeats: 4, AvailableSeats: 4,
		JoinedIDs: []string{}, PendingIDs: []string{},
		Status:    status,
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
}

func TestMemoryStoreVersionCheck(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := newRide("r1", "owner1", models.StatusActive, time.Now())
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Version != 1 {
		t.Fatalf("create must set version 1, got %d", r.Version)
	}

	a, _ := store.Get(ctx, "r1")
	b, _ := store.Get(ctx, "r1")

	a.AvailableSeats = 3
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("update must bump version, got %d", a.Version)
	}

	b.AvailableSeats = 0
	if err := store.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update must fail with ErrVersionConflict, got %v", err)
	}

	cur, _ := store.Get(ctx, "r1")
	if cur.AvailableSeats != 3 {
		t.Fatalf("losing write leaked through: %d", cur.AvailableSeats)
	}
}

func TestMemoryStoreGetReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	r := newRide("r1", "owner1", models.StatusActive, time.Now())
	r.JoinedIDs = []string{"e1"}
	r.JoinedSeats = map[string]int{"e1": 1}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.Get(ctx, "r1")
	got.JoinedIDs[0] = "tampered"
	got.JoinedSeats["e1"] = 99

	fresh, _ := store.Get(ctx, "r1")
	if fresh.JoinedIDs[0] != "e1" || fresh.JoinedSeats["e1"] != 1 {
		t.Fatalf("store handed out aliased state: %+v", fresh)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	r := newRide("nope", "owner1", models.StatusActive, time.Now())
	r.Version = 1
	if err := store.Update(ctx, r); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	rides := []*models.Ride{
		newRide("r1", "owner1", models.StatusActive, base),
		newRide("r2", "owner1", models.StatusExpired, base.Add(time.Minute)),
		newRide("r3", "owner2", models.StatusActive, base.Add(2*time.Minute)),
	}
	rides[2].JoinedIDs = []string{"e1"}
	for _, r := range rides {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}

	got, err := store.List(ctx, Filter{OwnerID: "owner1", Statuses: []models.RideStatus{models.StatusActive}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("owner+status filter wrong: %v", got)
	}

	got, _ = store.List(ctx, Filter{JoinedID: "e1"})
	if len(got) != 1 || got[0].ID != "r3" {
		t.Fatalf("joined filter wrong: %v", got)
	}

	got, _ = store.List(ctx, Filter{})
	if len(got) != 3 {
		t.Fatalf("unfiltered list wrong: %v", got)
	}
	// newest first
	if got[0].ID != "r3" || got[2].ID != "r1" {
		t.Fatalf("ordering wrong: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

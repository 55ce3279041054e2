package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/commute-rides/internal/models"
)

var (
	ErrNotFound        = errors.New("ride not found")
	ErrVersionConflict = errors.New("ride version conflict")
)

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	OwnerID     string
	JoinedID    string
	Origin      string
	Destination string
	Statuses    []models.RideStatus
}

func (f Filter) matches(r *models.Ride) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.JoinedID != "" && !r.HasJoined(f.JoinedID) {
		return false
	}
	if f.Origin != "" && r.Origin != f.Origin {
		return false
	}
	if f.Destination != "" && r.Destination != f.Destination {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// RideStore defines persistence operations for rides. Update performs a
// compare-and-update on the ride's version so two concurrent seat mutations
// cannot both win; callers retry on ErrVersionConflict.
type RideStore interface {
	Create(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)
	Update(ctx context.Context, r *models.Ride) error
	List(ctx context.Context, f Filter) ([]*models.Ride, error)
}

// MemoryStore keeps rides in a map. It enforces the same version check as
// the Postgres store so engine tests exercise the optimistic path.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) Create(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Version = 1
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != r.Version {
		return ErrVersionConflict
	}
	r.Version++
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		if f.matches(r) {
			out = append(out, r.Clone())
		}
	}
	// newest first, id as tiebreaker for stable pagination
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

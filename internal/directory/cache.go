package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/commute-rides/internal/models"
)

// EmployeeCache memoizes employee lookups with a TTL. It is an explicit,
// injected dependency rather than ambient package state, so its lifetime
// and staleness bound are chosen by the caller.
type EmployeeCache struct {
	src EmployeeSource
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]employeeEntry
}

type employeeEntry struct {
	emp     models.Employee
	missing bool
	ts      time.Time
}

func NewEmployeeCache(src EmployeeSource, ttl time.Duration) *EmployeeCache {
	return &EmployeeCache{src: src, ttl: ttl, entries: make(map[string]employeeEntry)}
}

func (c *EmployeeCache) Get(ctx context.Context, empID string) (models.Employee, error) {
	if e, ok := c.lookup(empID); ok {
		if e.missing {
			return models.Employee{}, ErrNoEmployee
		}
		return e.emp, nil
	}
	emp, err := c.src.Get(ctx, empID)
	if err != nil {
		if errors.Is(err, ErrNoEmployee) {
			// negative entries also expire, so a new hire shows up
			c.store(empID, employeeEntry{missing: true, ts: time.Now()})
		}
		return models.Employee{}, err
	}
	c.store(empID, employeeEntry{emp: emp, ts: time.Now()})
	return emp, nil
}

// Resolve fetches the unique ids in one pass before view assembly. Lookup
// failures are soft: the id is simply absent from the result map.
func (c *EmployeeCache) Resolve(ctx context.Context, ids []string) map[string]models.Employee {
	out := make(map[string]models.Employee, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if emp, err := c.Get(ctx, id); err == nil {
			out[id] = emp
		}
	}
	return out
}

func (c *EmployeeCache) lookup(empID string) (employeeEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[empID]
	c.mu.RUnlock()
	if !ok {
		return employeeEntry{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.entries, empID)
		c.mu.Unlock()
		return employeeEntry{}, false
	}
	return e, true
}

func (c *EmployeeCache) store(empID string, e employeeEntry) {
	c.mu.Lock()
	c.entries[empID] = e
	c.mu.Unlock()
}

// VehicleCache memoizes vehicle-approval lookups for the offer path.
// The TTL should be short: an approval revocation must take effect within
// one cache window.
type VehicleCache struct {
	src VehicleSource
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]vehicleEntry
}

type vehicleEntry struct {
	v  models.Vehicle
	ts time.Time
}

func NewVehicleCache(src VehicleSource, ttl time.Duration) *VehicleCache {
	return &VehicleCache{src: src, ttl: ttl, entries: make(map[string]vehicleEntry)}
}

func (c *VehicleCache) Get(ctx context.Context, empID string) (models.Vehicle, error) {
	c.mu.RLock()
	e, ok := c.entries[empID]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.v, nil
	}
	v, err := c.src.Get(ctx, empID)
	if err != nil {
		return models.Vehicle{}, err
	}
	c.mu.Lock()
	c.entries[empID] = vehicleEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
	return v, nil
}

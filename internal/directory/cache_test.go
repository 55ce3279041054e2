package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/commute-rides/internal/models"
)

type countingSource struct {
	byID  map[string]models.Employee
	calls int
	err   error
}

func (s *countingSource) Get(ctx context.Context, empID string) (models.Employee, error) {
	s.calls++
	if s.err != nil {
		return models.Employee{}, s.err
	}
	emp, ok := s.byID[empID]
	if !ok {
		return models.Employee{}, ErrNoEmployee
	}
	return emp, nil
}

func TestEmployeeCacheMemoizesWithinTTL(t *testing.T) {
	src := &countingSource{byID: map[string]models.Employee{
		"e1": {EmpID: "e1", Name: "Asha"},
	}}
	c := NewEmployeeCache(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		emp, err := c.Get(ctx, "e1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if emp.Name != "Asha" {
			t.Fatalf("unexpected employee %+v", emp)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}
}

func TestEmployeeCacheExpires(t *testing.T) {
	src := &countingSource{byID: map[string]models.Employee{
		"e1": {EmpID: "e1", Name: "Asha"},
	}}
	c := NewEmployeeCache(src, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := c.Get(ctx, "e1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "e1"); err != nil {
		t.Fatalf("get after ttl: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refetch after ttl, calls=%d", src.calls)
	}
}

func TestEmployeeCacheNegativeEntries(t *testing.T) {
	src := &countingSource{byID: map[string]models.Employee{}}
	c := NewEmployeeCache(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, "ghost"); !errors.Is(err, ErrNoEmployee) {
			t.Fatalf("expected ErrNoEmployee, got %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("misses should be cached too, calls=%d", src.calls)
	}
}

func TestResolveDeduplicatesAndSoftFails(t *testing.T) {
	src := &countingSource{byID: map[string]models.Employee{
		"e1": {EmpID: "e1", Name: "Asha"},
	}}
	c := NewEmployeeCache(src, time.Minute)

	out := c.Resolve(context.Background(), []string{"e1", "e1", "", "ghost"})
	if len(out) != 1 {
		t.Fatalf("expected only the resolvable id, got %v", out)
	}
	if out["e1"].Name != "Asha" {
		t.Fatalf("unexpected entry %+v", out["e1"])
	}
	// e1 once, ghost once; blank and duplicate skipped
	if src.calls != 2 {
		t.Fatalf("expected 2 source calls, got %d", src.calls)
	}
}

func TestVehicleCacheMemoizes(t *testing.T) {
	calls := 0
	src := vehicleSourceFunc(func(ctx context.Context, empID string) (models.Vehicle, error) {
		calls++
		return models.Vehicle{EmpID: empID, Status: models.VehicleApproved, Capacity: 4}, nil
	})
	c := NewVehicleCache(src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := c.Get(ctx, "owner1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if v.Status != models.VehicleApproved {
			t.Fatalf("unexpected vehicle %+v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one source call, got %d", calls)
	}
}

type vehicleSourceFunc func(ctx context.Context, empID string) (models.Vehicle, error)

func (f vehicleSourceFunc) Get(ctx context.Context, empID string) (models.Vehicle, error) {
	return f(ctx, empID)
}

package views

import (
	"context"
	"testing"

	"github.com/example/commute-rides/internal/models"
)

type staticResolver map[string]models.Employee

func (s staticResolver) Resolve(ctx context.Context, ids []string) map[string]models.Employee {
	out := make(map[string]models.Employee)
	for _, id := range ids {
		if emp, ok := s[id]; ok {
			out[id] = emp
		}
	}
	return out
}

func sampleRide() *models.Ride {
	return &models.Ride{
		ID: "r1", OwnerID: "owner1",
		Origin: "A", Destination: "B",
		Date: "2026-09-02", ArrivalTime: "09:00",
		TotalSeats: 4, AvailableSeats: 2,
		JoinedIDs:   []string{"p1"},
		JoinedSeats: map[string]int{"p1": 2},
		PendingIDs:  []string{"q1"},
		Status:      models.StatusActive,
	}
}

var people = staticResolver{
	"owner1": {EmpID: "owner1", Name: "Asha", Email: "asha@corp", Phone: "111"},
	"p1":     {EmpID: "p1", Name: "Bala", Email: "bala@corp", Phone: "222"},
	"q1":     {EmpID: "q1", Name: "Chitra", Email: "chitra@corp", Phone: "333"},
}

func buildFor(t *testing.T, viewer string) Ride {
	t.Helper()
	a := &Assembler{Employees: people}
	out := a.Build(context.Background(), viewer, []*models.Ride{sampleRide()})
	if len(out) != 1 {
		t.Fatalf("expected one view, got %d", len(out))
	}
	return out[0]
}

func TestOwnerSeesAllConfirmedPhones(t *testing.T) {
	v := buildFor(t, "owner1")
	if v.OwnerPhone != "111" {
		t.Fatalf("owner must see own phone, got %q", v.OwnerPhone)
	}
	if v.JoinedEmployees[0].Phone != "222" {
		t.Fatalf("owner must see confirmed passenger phone, got %q", v.JoinedEmployees[0].Phone)
	}
	if v.JoinedEmployees[0].Seats != 2 {
		t.Fatalf("seat count missing from view, got %d", v.JoinedEmployees[0].Seats)
	}
}

func TestJoinedPassengerSeesOwnerPhoneAndOwnOnly(t *testing.T) {
	v := buildFor(t, "p1")
	if v.OwnerPhone != "111" {
		t.Fatalf("confirmed passenger must see owner phone, got %q", v.OwnerPhone)
	}
	if v.JoinedEmployees[0].Phone != "222" {
		t.Fatalf("passenger must see their own phone, got %q", v.JoinedEmployees[0].Phone)
	}
}

func TestStrangerSeesNoPhones(t *testing.T) {
	v := buildFor(t, "nobody")
	if v.OwnerPhone != "" {
		t.Fatalf("stranger must not see owner phone, got %q", v.OwnerPhone)
	}
	if v.JoinedEmployees[0].Phone != "" {
		t.Fatalf("stranger must not see passenger phone, got %q", v.JoinedEmployees[0].Phone)
	}
}

func TestPendingPhonesNeverRevealed(t *testing.T) {
	for _, viewer := range []string{"owner1", "q1", "p1", "nobody"} {
		v := buildFor(t, viewer)
		if len(v.PendingEmployees) != 1 {
			t.Fatalf("expected one pending entry for %s", viewer)
		}
		if v.PendingEmployees[0].Phone != "" {
			t.Fatalf("pending phone leaked to %s", viewer)
		}
	}
}

func TestMissingProfileDegradesToPlaceholder(t *testing.T) {
	a := &Assembler{Employees: staticResolver{}}
	out := a.Build(context.Background(), "owner1", []*models.Ride{sampleRide()})
	v := out[0]
	if v.OwnerName != placeholderName {
		t.Fatalf("expected placeholder owner name, got %q", v.OwnerName)
	}
	if v.JoinedEmployees[0].Name != placeholderName {
		t.Fatalf("expected placeholder passenger name, got %q", v.JoinedEmployees[0].Name)
	}
	if v.OwnerPhone != "" {
		t.Fatalf("no phone should surface without a profile")
	}
}

// Package views assembles enriched ride responses. Employee profiles are
// resolved in one batch pass per request, and contact details are filtered
// by the viewer's relationship to the ride.
package views

import (
	"context"

	"github.com/example/commute-rides/internal/models"
)

// placeholderName stands in when the employee collaborator is unreachable
// or the profile is gone; a listing never fails on enrichment.
const placeholderName = "Unknown"

// EmployeeResolver is the batch lookup the assembler runs before per-ride
// assembly. Missing ids are simply absent from the map.
type EmployeeResolver interface {
	Resolve(ctx context.Context, ids []string) map[string]models.Employee
}

type Passenger struct {
	EmpID string `json:"empId"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Seats int    `json:"seats,omitempty"`
}

type Ride struct {
	ID         string `json:"id"`
	OwnerID    string `json:"ownerId"`
	OwnerName  string `json:"ownerName"`
	OwnerPhone string `json:"ownerPhone,omitempty"`

	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	OriginLat      *float64 `json:"originLat,omitempty"`
	OriginLng      *float64 `json:"originLng,omitempty"`
	DestinationLat *float64 `json:"destinationLat,omitempty"`
	DestinationLng *float64 `json:"destinationLng,omitempty"`

	Date        string `json:"date"`
	ArrivalTime string `json:"arrivalTime"`
	CarDetails  string `json:"carDetails"`

	TotalSeats     int    `json:"totalSeats"`
	AvailableSeats int    `json:"availableSeats"`
	Fare           string `json:"fare,omitempty"`
	Status         string `json:"status"`

	InstantBookingEnabled bool        `json:"instantBookingEnabled"`
	JoinedEmployees       []Passenger `json:"joinedEmployees"`
	PendingEmployees      []Passenger `json:"pendingEmployees,omitempty"`

	RouteDistanceMeters  *int   `json:"routeDistanceMeters,omitempty"`
	RouteDurationSeconds *int   `json:"routeDurationSeconds,omitempty"`
	RouteGeometry        string `json:"routeGeometry,omitempty"`
	DriverNote           string `json:"driverNote,omitempty"`
}

type Assembler struct {
	Employees EmployeeResolver
}

// Build enriches rides for one viewer. The unique owner and passenger ids
// across all rides are resolved in a single pass first.
func (a *Assembler) Build(ctx context.Context, viewerID string, rides []*models.Ride) []Ride {
	var ids []string
	for _, r := range rides {
		ids = append(ids, r.OwnerID)
		ids = append(ids, r.JoinedIDs...)
		ids = append(ids, r.PendingIDs...)
	}
	profiles := map[string]models.Employee{}
	if a.Employees != nil {
		profiles = a.Employees.Resolve(ctx, ids)
	}
	out := make([]Ride, 0, len(rides))
	for _, r := range rides {
		out = append(out, a.buildOne(viewerID, r, profiles))
	}
	return out
}

func (a *Assembler) buildOne(viewerID string, r *models.Ride, profiles map[string]models.Employee) Ride {
	v := Ride{
		ID:                    r.ID,
		OwnerID:               r.OwnerID,
		OwnerName:             nameOf(profiles, r.OwnerID),
		Origin:                r.Origin,
		Destination:           r.Destination,
		OriginLat:             r.OriginLat,
		OriginLng:             r.OriginLng,
		DestinationLat:        r.DestinationLat,
		DestinationLng:        r.DestinationLng,
		Date:                  r.Date,
		ArrivalTime:           r.ArrivalTime,
		CarDetails:            r.CarDetails,
		TotalSeats:            r.TotalSeats,
		AvailableSeats:        r.AvailableSeats,
		Fare:                  r.Fare,
		Status:                string(r.Status),
		InstantBookingEnabled: r.InstantBookingEnabled,
		JoinedEmployees:       make([]Passenger, 0, len(r.JoinedIDs)),
		RouteDistanceMeters:   r.RouteDistanceMeters,
		RouteDurationSeconds:  r.RouteDurationSeconds,
		RouteGeometry:         r.RouteGeometry,
		DriverNote:            r.DriverNote,
	}

	// The owner's phone is for the owner and confirmed passengers only.
	if viewerID == r.OwnerID || r.HasJoined(viewerID) {
		v.OwnerPhone = profiles[r.OwnerID].Phone
	}

	for _, empID := range r.JoinedIDs {
		p := Passenger{
			EmpID: empID,
			Name:  nameOf(profiles, empID),
			Email: profiles[empID].Email,
			Seats: r.SeatsFor(empID),
		}
		// A confirmed passenger's phone is visible to the owner and to
		// that passenger themselves.
		if viewerID == r.OwnerID || viewerID == empID {
			p.Phone = profiles[empID].Phone
		}
		v.JoinedEmployees = append(v.JoinedEmployees, p)
	}

	for _, empID := range r.PendingIDs {
		// Pending phones are never revealed until approved.
		v.PendingEmployees = append(v.PendingEmployees, Passenger{
			EmpID: empID,
			Name:  nameOf(profiles, empID),
			Email: profiles[empID].Email,
		})
	}
	return v
}

func nameOf(profiles map[string]models.Employee, empID string) string {
	if emp, ok := profiles[empID]; ok && emp.Name != "" {
		return emp.Name
	}
	return placeholderName
}

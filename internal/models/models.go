package models

import "time"

// RideStatus is stored as a plain string so the persistence layer stays
// agnostic of the state machine living in the ride package.
type RideStatus string

const (
	StatusActive    RideStatus = "Active"
	StatusExpired   RideStatus = "Expired"
	StatusCancelled RideStatus = "Cancelled"
)

// Terminal reports whether a ride in this status may no longer mutate seats.
func (s RideStatus) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// Ride is a published commute offer with a fixed seat capacity.
// Identity is the ID alone; Version backs the optimistic update check in
// the store.
type Ride struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`

	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	OriginLat      *float64 `json:"originLat,omitempty"`
	OriginLng      *float64 `json:"originLng,omitempty"`
	DestinationLat *float64 `json:"destinationLat,omitempty"`
	DestinationLng *float64 `json:"destinationLng,omitempty"`

	Date        string `json:"date"`        // yyyy-MM-dd
	ArrivalTime string `json:"arrivalTime"` // HH:mm

	CarDetails string `json:"carDetails"`

	TotalSeats     int    `json:"totalSeats"`
	AvailableSeats int    `json:"availableSeats"`
	Fare           string `json:"fare,omitempty"` // decimal string, empty => free

	InstantBookingEnabled bool `json:"instantBookingEnabled"`

	JoinedIDs    []string          `json:"joinedIds"`
	JoinedSeats  map[string]int    `json:"joinedSeats,omitempty"`
	PendingIDs   []string          `json:"pendingIds"`
	PendingSeats map[string]int    `json:"pendingSeats,omitempty"`
	FareHolds    map[string]string `json:"-"` // empId -> payment intent id

	RouteDistanceMeters  *int   `json:"routeDistanceMeters,omitempty"`
	RouteDurationSeconds *int   `json:"routeDurationSeconds,omitempty"`
	RouteGeometry        string `json:"routeGeometry,omitempty"`
	DriverNote           string `json:"driverNote,omitempty"`

	Status    RideStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	Version int64 `json:"-"`
}

// ScheduledAt parses Date+ArrivalTime into the departure instant.
// ok is false when either field is missing or malformed.
func (r *Ride) ScheduledAt() (time.Time, bool) {
	t, err := time.ParseInLocation("2006-01-02 15:04", r.Date+" "+r.ArrivalTime, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DueToExpire reports whether the sweep should demote the ride: the date is
// past, or it is today and the arrival instant has been reached.
func (r *Ride) DueToExpire(now time.Time) bool {
	sched, ok := r.ScheduledAt()
	if !ok {
		return false
	}
	return !sched.After(now.UTC())
}

func (r *Ride) HasJoined(empID string) bool { return contains(r.JoinedIDs, empID) }

func (r *Ride) HasPending(empID string) bool { return contains(r.PendingIDs, empID) }

// SeatsHeld sums the confirmed seat counts. Passengers without an entry in
// JoinedSeats hold one seat.
func (r *Ride) SeatsHeld() int {
	total := 0
	for _, id := range r.JoinedIDs {
		total += r.SeatsFor(id)
	}
	return total
}

func (r *Ride) SeatsFor(empID string) int {
	if n, ok := r.JoinedSeats[empID]; ok && n > 0 {
		return n
	}
	return 1
}

// Clone returns a deep copy so stores never hand out aliased slices or maps.
func (r *Ride) Clone() *Ride {
	cp := *r
	cp.JoinedIDs = append([]string(nil), r.JoinedIDs...)
	cp.PendingIDs = append([]string(nil), r.PendingIDs...)
	cp.JoinedSeats = cloneIntMap(r.JoinedSeats)
	cp.PendingSeats = cloneIntMap(r.PendingSeats)
	cp.FareHolds = cloneStringMap(r.FareHolds)
	return &cp
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Employee is the profile shape returned by the employee collaborator.
type Employee struct {
	EmpID string `json:"empId"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Vehicle approval statuses as reported by the vehicle collaborator.
const (
	VehiclePending  = "PENDING"
	VehicleApproved = "APPROVED"
	VehicleRejected = "REJECTED"
)

type Vehicle struct {
	EmpID              string `json:"empId"`
	Make               string `json:"make"`
	Model              string `json:"model"`
	RegistrationNumber string `json:"registrationNumber"`
	Capacity           int    `json:"capacity"`
	Status             string `json:"status"`
}

// Notification is the fire-and-forget event handed to the dispatcher.
type Notification struct {
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/example/commute-rides/internal/directory"
	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/notify"
	"github.com/example/commute-rides/internal/observability"
	"github.com/example/commute-rides/internal/payments"
	"github.com/example/commute-rides/internal/storage"
)

const (
	minSeats = 1
	maxSeats = 8

	// attempts for the optimistic seat-mutation loop before giving up
	casAttempts = 5

	maxPlaceLen = 100
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	fareRe = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// Engine is the booking state machine. It is stateless across requests;
// correctness under concurrency rests on the store's version check, which
// the mutate loop retries on.
type Engine struct {
	Store     storage.RideStore
	Vehicles  directory.VehicleSource
	Employees directory.EmployeeSource
	Hook      *notify.Hook
	Payments  payments.FareHolder
	Currency  string
	Logger    *slog.Logger
	Now       func() time.Time
}

// OfferRequest carries the client-supplied fields for offer and edit.
// Car details are deliberately absent: they always come from the approved
// vehicle record.
type OfferRequest struct {
	Origin                string
	Destination           string
	Date                  string // yyyy-MM-dd
	ArrivalTime           string // HH:mm
	TotalSeats            int
	Fare                  string // decimal string, empty => free
	InstantBookingEnabled bool

	OriginLat            *float64
	OriginLng            *float64
	DestinationLat       *float64
	DestinationLng       *float64
	RouteDistanceMeters  *int
	RouteDurationSeconds *int
	RouteGeometry        string
	DriverNote           string
}

// Offer publishes a new ride. The owner must pass the vehicle gate and
// must not already hold a forward-looking active ride.
func (e *Engine) Offer(ctx context.Context, ownerID string, req OfferRequest) (*models.Ride, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, validationf("owner id is required")
	}
	if err := validateOffer(req); err != nil {
		return nil, err
	}
	e.sweep(ctx)
	if err := e.ownerConflict(ctx, ownerID); err != nil {
		return nil, err
	}
	v, err := e.Vehicles.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, directory.ErrNoVehicle) {
			return nil, forbiddenf("no registered vehicle for %s", ownerID)
		}
		return nil, externalErr("vehicle lookup", err)
	}
	if v.Status != models.VehicleApproved {
		return nil, forbiddenf("vehicle for %s is not approved", ownerID)
	}
	if req.TotalSeats > v.Capacity {
		return nil, forbiddenf("requested %d seats but vehicle capacity is %d", req.TotalSeats, v.Capacity)
	}

	now := e.now()
	r := &models.Ride{
		ID:                    newID(),
		OwnerID:               ownerID,
		Origin:                strings.TrimSpace(req.Origin),
		Destination:           strings.TrimSpace(req.Destination),
		OriginLat:             req.OriginLat,
		OriginLng:             req.OriginLng,
		DestinationLat:        req.DestinationLat,
		DestinationLng:        req.DestinationLng,
		Date:                  req.Date,
		ArrivalTime:           req.ArrivalTime,
		CarDetails:            carDetails(v),
		TotalSeats:            req.TotalSeats,
		AvailableSeats:        req.TotalSeats,
		Fare:                  strings.TrimSpace(req.Fare),
		InstantBookingEnabled: req.InstantBookingEnabled,
		JoinedIDs:             []string{},
		PendingIDs:            []string{},
		RouteDistanceMeters:   req.RouteDistanceMeters,
		RouteDurationSeconds:  req.RouteDurationSeconds,
		RouteGeometry:         req.RouteGeometry,
		DriverNote:            req.DriverNote,
		Status:                models.StatusActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.Store.Create(ctx, r); err != nil {
		return nil, externalErr("ride store", err)
	}
	observability.OffersTotal.Inc()
	return r, nil
}

// Join books a seat (instant mode) or queues an approval request.
// Repeat joins by the same employee are a no-op.
func (e *Engine) Join(ctx context.Context, rideID, empID string, seats int) error {
	if strings.TrimSpace(empID) == "" {
		return validationf("empId is required")
	}
	if seats <= 0 {
		seats = 1
	}
	if seats > maxSeats {
		return validationf("cannot request more than %d seats", maxSeats)
	}
	e.sweep(ctx)

	var booked, queued bool
	r, err := e.mutate(ctx, rideID, func(r *models.Ride) error {
		booked, queued = false, false
		if r.Status != models.StatusActive {
			return statef("ride is not active")
		}
		if r.HasJoined(empID) || r.HasPending(empID) {
			return errNoop
		}
		if r.AvailableSeats <= 0 {
			return statef("no seats available")
		}
		if !r.InstantBookingEnabled {
			r.PendingIDs = append(r.PendingIDs, empID)
			if r.PendingSeats == nil {
				r.PendingSeats = make(map[string]int)
			}
			r.PendingSeats[empID] = seats
			queued = true
			return nil
		}
		if seats > r.AvailableSeats {
			return statef("only %d seats available", r.AvailableSeats)
		}
		r.JoinedIDs = append(r.JoinedIDs, empID)
		if r.JoinedSeats == nil {
			r.JoinedSeats = make(map[string]int)
		}
		r.JoinedSeats[empID] = seats
		r.AvailableSeats -= seats
		booked = true
		return nil
	})
	if err != nil {
		return err
	}
	switch {
	case booked:
		observability.JoinsTotal.Inc()
		e.Hook.Go(r.OwnerID, fmt.Sprintf("Employee %s joined your ride to %s.", e.employeeName(ctx, empID), r.Destination))
		e.holdFare(r, empID, seats)
	case queued:
		observability.JoinRequestsTotal.Inc()
		e.Hook.Go(r.OwnerID, fmt.Sprintf("Employee %s requested to join your ride to %s.", e.employeeName(ctx, empID), r.Destination))
	}
	return nil
}

// Approve moves a pending requester into the confirmed set. Owner-only;
// a no-op on instant-booking rides.
func (e *Engine) Approve(ctx context.Context, rideID, ownerID, empID string) error {
	if strings.TrimSpace(empID) == "" {
		return validationf("empId is required")
	}
	e.sweep(ctx)

	var approved bool
	r, err := e.mutate(ctx, rideID, func(r *models.Ride) error {
		approved = false
		if r.Status != models.StatusActive {
			return statef("ride is not active")
		}
		if r.OwnerID != ownerID {
			return forbiddenf("only the ride owner may approve join requests")
		}
		if r.InstantBookingEnabled {
			return errNoop
		}
		if !r.HasPending(empID) {
			return statef("no pending request from %s", empID)
		}
		seats := pendingSeats(r, empID)
		if r.AvailableSeats <= 0 || seats > r.AvailableSeats {
			return statef("no seats available")
		}
		r.PendingIDs = removeID(r.PendingIDs, empID)
		delete(r.PendingSeats, empID)
		r.JoinedIDs = append(r.JoinedIDs, empID)
		if r.JoinedSeats == nil {
			r.JoinedSeats = make(map[string]int)
		}
		r.JoinedSeats[empID] = seats
		r.AvailableSeats -= seats
		approved = true
		return nil
	})
	if err != nil {
		return err
	}
	if approved {
		observability.ApprovalsTotal.Inc()
		e.Hook.Go(empID, fmt.Sprintf("Your request to join the ride to %s on %s was approved.", r.Destination, r.Date))
		e.holdFare(r, empID, r.SeatsFor(empID))
	}
	return nil
}

// Decline removes a pending requester without touching seat counts.
func (e *Engine) Decline(ctx context.Context, rideID, ownerID, empID string) error {
	if strings.TrimSpace(empID) == "" {
		return validationf("empId is required")
	}
	e.sweep(ctx)

	r, err := e.mutate(ctx, rideID, func(r *models.Ride) error {
		if r.Status != models.StatusActive {
			return statef("ride is not active")
		}
		if r.OwnerID != ownerID {
			return forbiddenf("only the ride owner may decline join requests")
		}
		if !r.HasPending(empID) {
			return statef("no pending request from %s", empID)
		}
		r.PendingIDs = removeID(r.PendingIDs, empID)
		delete(r.PendingSeats, empID)
		return nil
	})
	if err != nil {
		return err
	}
	observability.DeclinesTotal.Inc()
	e.Hook.Go(empID, fmt.Sprintf("Your request to join the ride to %s on %s was declined.", r.Destination, r.Date))
	return nil
}

// Leave removes the employee from whichever membership set holds them,
// restoring seats only for confirmed passengers.
func (e *Engine) Leave(ctx context.Context, rideID, empID string) error {
	if strings.TrimSpace(empID) == "" {
		return validationf("empId is required")
	}
	e.sweep(ctx)

	var wasJoined bool
	var holdID string
	r, err := e.mutate(ctx, rideID, func(r *models.Ride) error {
		wasJoined, holdID = false, ""
		if r.Status != models.StatusActive {
			return statef("ride is not active")
		}
		switch {
		case r.HasJoined(empID):
			seats := r.SeatsFor(empID)
			if r.AvailableSeats+seats > r.TotalSeats {
				return statef("seat accounting would exceed capacity")
			}
			r.JoinedIDs = removeID(r.JoinedIDs, empID)
			delete(r.JoinedSeats, empID)
			r.AvailableSeats += seats
			holdID = r.FareHolds[empID]
			delete(r.FareHolds, empID)
			wasJoined = true
		case r.HasPending(empID):
			r.PendingIDs = removeID(r.PendingIDs, empID)
			delete(r.PendingSeats, empID)
		default:
			return statef("employee %s has neither joined nor requested this ride", empID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	observability.LeavesTotal.Inc()
	if wasJoined {
		e.Hook.Go(r.OwnerID, fmt.Sprintf("Employee %s left your ride to %s.", e.employeeName(ctx, empID), r.Destination))
		e.releaseHolds(r.ID, map[string]string{empID: holdID})
	}
	return nil
}

// Edit replaces the mutable trip fields while the ride is active. The seat
// capacity may shrink only down to the seats already booked; car details
// stay pinned to the approved vehicle.
func (e *Engine) Edit(ctx context.Context, rideID, ownerID string, req OfferRequest) (*models.Ride, error) {
	if err := validateOffer(req); err != nil {
		return nil, err
	}
	r, err := e.mutate(ctx, rideID, func(r *models.Ride) error {
		if r.OwnerID != ownerID {
			return forbiddenf("only the ride owner may edit the ride")
		}
		if r.Status != models.StatusActive {
			return statef("ride is not active")
		}
		held := r.SeatsHeld()
		if req.TotalSeats < held {
			return statef("cannot reduce seats below the %d already booked", held)
		}
		r.Origin = strings.TrimSpace(req.Origin)
		r.Destination = strings.TrimSpace(req.Destination)
		r.OriginLat = req.OriginLat
		r.OriginLng = req.OriginLng
		r.DestinationLat = req.DestinationLat
		r.DestinationLng = req.DestinationLng
		r.Date = req.Date
		r.ArrivalTime = req.ArrivalTime
		r.TotalSeats = req.TotalSeats
		r.AvailableSeats = req.TotalSeats - held
		r.Fare = strings.TrimSpace(req.Fare)
		r.InstantBookingEnabled = req.InstantBookingEnabled
		r.RouteDistanceMeters = req.RouteDistanceMeters
		r.RouteDurationSeconds = req.RouteDurationSeconds
		r.RouteGeometry = req.RouteGeometry
		r.DriverNote = req.DriverNote
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(r.JoinedIDs) > 0 {
		if sched, ok := r.ScheduledAt(); ok && e.now().Before(sched) {
			msg := fmt.Sprintf("Ride from %s to %s on %s was updated by the owner.", r.Origin, r.Destination, r.Date)
			for _, emp := range r.JoinedIDs {
				e.Hook.Go(emp, msg)
			}
		}
	}
	return r, nil
}

// Cancel is the owner-initiated terminal transition. Passengers are
// notified only when the ride had not yet departed.
func (e *Engine) Cancel(ctx context.Context, rideID, ownerID string) error {
	e.sweep(ctx)

	r, err := e.mutate(ctx, rideID, func(r *models.Ride) error {
		if r.OwnerID != ownerID {
			return forbiddenf("only the ride owner may cancel the ride")
		}
		if r.Status != models.StatusActive {
			return statef("ride is not active")
		}
		r.Status = models.StatusCancelled
		return nil
	})
	if err != nil {
		return err
	}
	observability.CancellationsTotal.Inc()
	if len(r.JoinedIDs) > 0 {
		if sched, ok := r.ScheduledAt(); ok && e.now().Before(sched) {
			msg := fmt.Sprintf("Ride from %s to %s on %s was cancelled by the owner.", r.Origin, r.Destination, r.Date)
			for _, emp := range r.JoinedIDs {
				e.Hook.Go(emp, msg)
			}
		}
	}
	e.releaseHolds(r.ID, r.FareHolds)
	return nil
}

// Get returns the raw ride record, sweeping first so a due ride reads as
// Expired.
func (e *Engine) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	e.sweep(ctx)
	r, err := e.Store.Get(ctx, rideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFoundf("ride %s not found", rideID)
		}
		return nil, externalErr("ride store", err)
	}
	return r, nil
}

var errNoop = errors.New("no state change")

// mutate runs fn against a fresh read of the ride and persists the result
// under the store's version check, retrying on conflicts so concurrent
// joiners cannot both take the last seat. fn returning errNoop commits
// nothing and reports success.
func (e *Engine) mutate(ctx context.Context, rideID string, fn func(*models.Ride) error) (*models.Ride, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		r, err := e.Store.Get(ctx, rideID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, notFoundf("ride %s not found", rideID)
			}
			return nil, externalErr("ride store", err)
		}
		if err := fn(r); err != nil {
			if errors.Is(err, errNoop) {
				return r, nil
			}
			return nil, err
		}
		r.UpdatedAt = e.now()
		switch err := e.Store.Update(ctx, r); {
		case err == nil:
			return r, nil
		case errors.Is(err, storage.ErrVersionConflict):
			observability.SeatUpdateRetries.Inc()
			lastErr = err
		case errors.Is(err, storage.ErrNotFound):
			return nil, notFoundf("ride %s not found", rideID)
		default:
			return nil, externalErr("ride store", err)
		}
	}
	return nil, externalErr("ride store contention", lastErr)
}

func (e *Engine) sweeper() *Sweeper {
	return &Sweeper{Store: e.Store, Hook: e.Hook, Payments: e.Payments, Logger: e.Logger, Now: e.Now}
}

func (e *Engine) sweep(ctx context.Context) {
	if _, err := e.sweeper().Sweep(ctx); err != nil && e.Logger != nil {
		e.Logger.Warn("opportunistic expiry sweep failed", "error", err)
	}
}

// holdFare places a best-effort payment hold for a confirmed booking and
// records the hold id on the ride. Never blocks the booking itself.
func (e *Engine) holdFare(r *models.Ride, empID string, seats int) {
	if e.Payments == nil || r.Fare == "" {
		return
	}
	perSeat, err := payments.FareMinorUnits(r.Fare)
	if err != nil || perSeat == 0 {
		return
	}
	rideID := r.ID
	currency := e.Currency
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		holdID, err := e.Payments.Hold(ctx, perSeat*int64(seats), currency, empID)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("fare hold failed", "ride", rideID, "employee", empID, "error", err)
			}
			return
		}
		_, err = e.mutate(ctx, rideID, func(r *models.Ride) error {
			if !r.HasJoined(empID) {
				// passenger already left; release instead of recording
				return errNoop
			}
			if r.FareHolds == nil {
				r.FareHolds = make(map[string]string)
			}
			r.FareHolds[empID] = holdID
			return nil
		})
		if err != nil && e.Logger != nil {
			e.Logger.Warn("fare hold not recorded", "ride", rideID, "employee", empID, "error", err)
		}
	}()
}

// releaseHolds cancels payment holds asynchronously; failures are logged.
func (e *Engine) releaseHolds(rideID string, holds map[string]string) {
	if e.Payments == nil || len(holds) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for emp, holdID := range holds {
			if holdID == "" {
				continue
			}
			if err := e.Payments.Release(ctx, holdID); err != nil && e.Logger != nil {
				e.Logger.Warn("fare hold release failed", "ride", rideID, "employee", emp, "error", err)
			}
		}
	}()
}

func (e *Engine) employeeName(ctx context.Context, empID string) string {
	if e.Employees == nil {
		return empID
	}
	emp, err := e.Employees.Get(ctx, empID)
	if err != nil || emp.Name == "" {
		return empID
	}
	return emp.Name
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func validateOffer(req OfferRequest) error {
	if strings.TrimSpace(req.Origin) == "" || len(req.Origin) > maxPlaceLen {
		return validationf("origin must be 1..%d characters", maxPlaceLen)
	}
	if strings.TrimSpace(req.Destination) == "" || len(req.Destination) > maxPlaceLen {
		return validationf("destination must be 1..%d characters", maxPlaceLen)
	}
	if !dateRe.MatchString(req.Date) {
		return validationf("date must be yyyy-MM-dd")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return validationf("date %q is not a calendar date", req.Date)
	}
	if !timeRe.MatchString(req.ArrivalTime) {
		return validationf("arrival time must be HH:mm")
	}
	if req.TotalSeats < minSeats || req.TotalSeats > maxSeats {
		return validationf("total seats must be between %d and %d", minSeats, maxSeats)
	}
	if fare := strings.TrimSpace(req.Fare); fare != "" && !fareRe.MatchString(fare) {
		return validationf("fare must be a non-negative decimal with up to 2 places")
	}
	return nil
}

func carDetails(v models.Vehicle) string {
	return fmt.Sprintf("%s %s (%s)", v.Make, v.Model, v.RegistrationNumber)
}

func pendingSeats(r *models.Ride, empID string) int {
	if n, ok := r.PendingSeats[empID]; ok && n > 0 {
		return n
	}
	return 1
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }

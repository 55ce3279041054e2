package ride

import (
	"context"
	"strings"

	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/storage"
)

// Page is zero-based, matching the collaborator surface the clients
// already speak.
type Page struct {
	Number int
	Size   int
}

func (p Page) slice(rides []*models.Ride) []*models.Ride {
	size := p.Size
	if size <= 0 {
		size = 20
	}
	n := p.Number
	if n < 0 {
		n = 0
	}
	start := n * size
	if start >= len(rides) {
		return []*models.Ride{}
	}
	end := start + size
	if end > len(rides) {
		end = len(rides)
	}
	return rides[start:end]
}

var terminalStatuses = []models.RideStatus{models.StatusExpired, models.StatusCancelled}

// AllRides lists every ride regardless of status.
func (e *Engine) AllRides(ctx context.Context, p Page) ([]*models.Ride, error) {
	return e.list(ctx, storage.Filter{}, p)
}

// ActiveRides lists open offers.
func (e *Engine) ActiveRides(ctx context.Context, p Page) ([]*models.Ride, error) {
	return e.list(ctx, storage.Filter{Statuses: []models.RideStatus{models.StatusActive}}, p)
}

// RidesByOwner lists the owner's active rides.
func (e *Engine) RidesByOwner(ctx context.Context, ownerID string, p Page) ([]*models.Ride, error) {
	return e.list(ctx, storage.Filter{OwnerID: ownerID, Statuses: []models.RideStatus{models.StatusActive}}, p)
}

// JoinedRides lists the active rides the employee is confirmed on.
func (e *Engine) JoinedRides(ctx context.Context, empID string, p Page) ([]*models.Ride, error) {
	return e.list(ctx, storage.Filter{JoinedID: empID, Statuses: []models.RideStatus{models.StatusActive}}, p)
}

// HistoryPublished lists the owner's terminal-state rides.
func (e *Engine) HistoryPublished(ctx context.Context, ownerID string, p Page) ([]*models.Ride, error) {
	return e.list(ctx, storage.Filter{OwnerID: ownerID, Statuses: terminalStatuses}, p)
}

// HistoryJoined lists terminal-state rides the employee was confirmed on.
func (e *Engine) HistoryJoined(ctx context.Context, empID string, p Page) ([]*models.Ride, error) {
	return e.list(ctx, storage.Filter{JoinedID: empID, Statuses: terminalStatuses}, p)
}

// Search matches active rides by exact origin and destination.
func (e *Engine) Search(ctx context.Context, origin, destination string, p Page) ([]*models.Ride, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return nil, validationf("origin and destination are required")
	}
	return e.list(ctx, storage.Filter{
		Origin:      origin,
		Destination: destination,
		Statuses:    []models.RideStatus{models.StatusActive},
	}, p)
}

func (e *Engine) list(ctx context.Context, f storage.Filter, p Page) ([]*models.Ride, error) {
	e.sweep(ctx)
	rides, err := e.Store.List(ctx, f)
	if err != nil {
		return nil, externalErr("ride store", err)
	}
	return p.slice(rides), nil
}

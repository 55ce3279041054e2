package ride

import (
	"context"

	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/storage"
)

// ownerConflict enforces the one-forward-looking-active-ride rule: a new
// offer is rejected while the owner has any active ride whose scheduled
// instant is still ahead. A ride whose schedule cannot be parsed also
// blocks, since it can never be swept to Expired on its own.
func (e *Engine) ownerConflict(ctx context.Context, ownerID string) error {
	rides, err := e.Store.List(ctx, storage.Filter{
		OwnerID:  ownerID,
		Statuses: []models.RideStatus{models.StatusActive},
	})
	if err != nil {
		return externalErr("ride store", err)
	}
	now := e.now()
	for _, r := range rides {
		sched, ok := r.ScheduledAt()
		if !ok || sched.After(now) {
			return conflictf("an active ride to %s scheduled for %s %s already exists", r.Destination, r.Date, r.ArrivalTime)
		}
	}
	return nil
}

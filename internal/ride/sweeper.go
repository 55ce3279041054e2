package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/notify"
	"github.com/example/commute-rides/internal/observability"
	"github.com/example/commute-rides/internal/payments"
	"github.com/example/commute-rides/internal/storage"
)

// Sweeper demotes active rides whose scheduled instant has passed.
// It runs opportunistically at the start of read-heavy operations, so
// staleness is bounded by request frequency rather than a timer. Safe to
// run concurrently: the Active→Expired transition is idempotent and
// guarded by the store's version check.
type Sweeper struct {
	Store    storage.RideStore
	Hook     *notify.Hook
	Payments payments.FareHolder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Sweep scans all active rides and expires the due ones, returning how
// many transitions this caller won.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	rides, err := s.Store.List(ctx, storage.Filter{Statuses: []models.RideStatus{models.StatusActive}})
	if err != nil {
		return 0, err
	}
	now := s.now()
	swept := 0
	for _, r := range rides {
		if !r.DueToExpire(now) {
			continue
		}
		if !s.expire(ctx, r, now) {
			continue
		}
		swept++
		observability.ExpiredTotal.Inc()
		msg := fmt.Sprintf("Ride from %s to %s on %s has closed.", r.Origin, r.Destination, r.Date)
		for _, emp := range r.JoinedIDs {
			s.Hook.Go(emp, msg)
		}
		s.captureHolds(r)
	}
	return swept, nil
}

// expire performs the single-ride transition, retrying once on a version
// conflict in case a seat mutation raced the sweep. A ride that turns out
// to be non-Active on reload was already handled by another caller.
func (s *Sweeper) expire(ctx context.Context, r *models.Ride, now time.Time) bool {
	for attempt := 0; attempt < 2; attempt++ {
		r.Status = models.StatusExpired
		r.UpdatedAt = now
		err := s.Store.Update(ctx, r)
		if err == nil {
			return true
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			if s.Logger != nil {
				s.Logger.Warn("expiry sweep update failed", "ride", r.ID, "error", err)
			}
			return false
		}
		fresh, err := s.Store.Get(ctx, r.ID)
		if err != nil || fresh.Status != models.StatusActive {
			return false
		}
		r = fresh
	}
	return false
}

// captureHolds finalizes fare holds once the ride's scheduled instant has
// passed. Best-effort: payment errors are logged only.
func (s *Sweeper) captureHolds(r *models.Ride) {
	if s.Payments == nil || len(r.FareHolds) == 0 {
		return
	}
	holds := r.FareHolds
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for emp, holdID := range holds {
			if err := s.Payments.Capture(ctx, holdID); err != nil && s.Logger != nil {
				s.Logger.Warn("fare capture failed", "ride", r.ID, "employee", emp, "error", err)
			}
		}
	}()
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

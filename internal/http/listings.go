package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/commute-rides/internal/models"
	"github.com/example/commute-rides/internal/ride"
)

// listFn fetches one page of rides for a request.
type listFn func(r *http.Request, p ride.Page) ([]*models.Ride, error)

// listing wraps a fetch with the shared enrich-and-respond path. The
// viewer is taken from the gateway header; an anonymous viewer still gets
// the listing, just with all contact detail withheld.
func (s *Server) listing(fn listFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rides, err := fn(r, s.page(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		viewer := r.Header.Get(employeeHeader)
		writeJSON(w, http.StatusOK, s.Views.Build(r.Context(), viewer, rides))
	}
}

func (s *Server) allRides(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	return s.Engine.AllRides(r.Context(), p)
}

func (s *Server) activeRides(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	return s.Engine.ActiveRides(r.Context(), p)
}

func (s *Server) myRides(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	return s.Engine.RidesByOwner(r.Context(), r.Header.Get(employeeHeader), p)
}

func (s *Server) joinedRides(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	return s.Engine.JoinedRides(r.Context(), mux.Vars(r)["empId"], p)
}

func (s *Server) historyPublished(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	return s.Engine.HistoryPublished(r.Context(), mux.Vars(r)["empId"], p)
}

func (s *Server) historyJoined(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	return s.Engine.HistoryJoined(r.Context(), mux.Vars(r)["empId"], p)
}

func (s *Server) searchRides(r *http.Request, p ride.Page) ([]*models.Ride, error) {
	q := r.URL.Query()
	return s.Engine.Search(r.Context(), q.Get("origin"), q.Get("destination"), p)
}

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/commute-rides/internal/notify"
	"github.com/example/commute-rides/internal/ride"
	"github.com/example/commute-rides/internal/views"
)

// employeeHeader carries the caller identity injected by the gateway;
// token validation happens before requests reach this service.
const employeeHeader = "X-Employee-Id"

type Server struct {
	Engine      *ride.Engine
	Views       *views.Assembler
	WSReg       *notify.WSRegistry
	PageSizeMax int

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(engine *ride.Engine, assembler *views.Assembler, wsreg *notify.WSRegistry, pageSizeMax int, logger *slog.Logger) *Server {
	s := &Server{
		Engine:      engine,
		Views:       assembler,
		WSReg:       wsreg,
		PageSizeMax: pageSizeMax,
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ride/offer", s.handleOffer).Methods("POST")
	s.mux.HandleFunc("/ride/join/{id}", s.handleJoin).Methods("POST")
	s.mux.HandleFunc("/ride/leave/{id}", s.handleLeave).Methods("POST")
	s.mux.HandleFunc("/ride/approve/{id}", s.handleApprove).Methods("POST")
	s.mux.HandleFunc("/ride/decline/{id}", s.handleDecline).Methods("POST")
	s.mux.HandleFunc("/ride/edit/{id}", s.handleEdit).Methods("PUT")
	s.mux.HandleFunc("/ride/edit/{id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/ride/{id}", s.handleCancel).Methods("DELETE")

	s.mux.HandleFunc("/ride/all", s.listing(s.allRides)).Methods("GET")
	s.mux.HandleFunc("/ride/active", s.listing(s.activeRides)).Methods("GET")
	s.mux.HandleFunc("/ride/my-rides", s.listing(s.myRides)).Methods("GET")
	s.mux.HandleFunc("/ride/joined/{empId}", s.listing(s.joinedRides)).Methods("GET")
	s.mux.HandleFunc("/ride/history/published/{empId}", s.listing(s.historyPublished)).Methods("GET")
	s.mux.HandleFunc("/ride/history/joined/{empId}", s.listing(s.historyJoined)).Methods("GET")
	s.mux.HandleFunc("/ride/search", s.listing(s.searchRides)).Methods("GET")

	s.mux.HandleFunc("/ws/{empId}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// offerPayload is the wire shape for offer and edit bodies.
type offerPayload struct {
	Origin                string   `json:"origin"`
	Destination           string   `json:"destination"`
	Date                  string   `json:"date"`
	ArrivalTime           string   `json:"arrivalTime"`
	TotalSeats            int      `json:"totalSeats"`
	Fare                  string   `json:"fare"`
	InstantBookingEnabled bool     `json:"instantBookingEnabled"`
	OriginLat             *float64 `json:"originLat"`
	OriginLng             *float64 `json:"originLng"`
	DestinationLat        *float64 `json:"destinationLat"`
	DestinationLng        *float64 `json:"destinationLng"`
	RouteDistanceMeters   *int     `json:"routeDistanceMeters"`
	RouteDurationSeconds  *int     `json:"routeDurationSeconds"`
	RouteGeometry         string   `json:"routeGeometry"`
	DriverNote            string   `json:"driverNote"`
}

func (p offerPayload) toRequest() ride.OfferRequest {
	return ride.OfferRequest{
		Origin:                p.Origin,
		Destination:           p.Destination,
		Date:                  p.Date,
		ArrivalTime:           p.ArrivalTime,
		TotalSeats:            p.TotalSeats,
		Fare:                  p.Fare,
		InstantBookingEnabled: p.InstantBookingEnabled,
		OriginLat:             p.OriginLat,
		OriginLng:             p.OriginLng,
		DestinationLat:        p.DestinationLat,
		DestinationLng:        p.DestinationLng,
		RouteDistanceMeters:   p.RouteDistanceMeters,
		RouteDurationSeconds:  p.RouteDurationSeconds,
		RouteGeometry:         p.RouteGeometry,
		DriverNote:            p.DriverNote,
	}
}

type memberPayload struct {
	EmpID string `json:"empId"`
	Seats int    `json:"seats"`
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	var p offerPayload
	if !decodeBody(w, r, &p) {
		return
	}
	created, err := s.Engine.Offer(r.Context(), owner, p.toRequest())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var p memberPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.Engine.Join(r.Context(), mux.Vars(r)["id"], p.EmpID, p.Seats); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var p memberPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.Engine.Leave(r.Context(), mux.Vars(r)["id"], p.EmpID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	var p memberPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.Engine.Approve(r.Context(), mux.Vars(r)["id"], owner, p.EmpID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	var p memberPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.Engine.Decline(r.Context(), mux.Vars(r)["id"], owner, p.EmpID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	var p offerPayload
	if !decodeBody(w, r, &p) {
		return
	}
	updated, err := s.Engine.Edit(r.Context(), mux.Vars(r)["id"], owner, p.toRequest())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	found, err := s.Engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.Engine.Cancel(r.Context(), mux.Vars(r)["id"], owner); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	empID := mux.Vars(r)["empId"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(empID, conn)
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	empID := r.Header.Get(employeeHeader)
	if empID == "" {
		s.writeError(w, &ride.Error{Kind: ride.KindForbidden, Msg: "missing " + employeeHeader + " header"})
		return "", false
	}
	return empID, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ride.KindOf(err) {
	case ride.KindValidation:
		status = http.StatusBadRequest
	case ride.KindConflict, ride.KindState:
		status = http.StatusConflict
	case ride.KindForbidden:
		status = http.StatusForbidden
	case ride.KindNotFound:
		status = http.StatusNotFound
	case ride.KindExternal:
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("unclassified error", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) page(r *http.Request) ride.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 {
		size = 20
	}
	if size > s.PageSizeMax {
		size = s.PageSizeMax
	}
	return ride.Page{Number: page, Size: size}
}

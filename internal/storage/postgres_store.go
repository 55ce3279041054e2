package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/example/commute-rides/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const rideColumns = `id, owner_id, origin, destination, origin_lat, origin_lng,
destination_lat, destination_lng, date, arrival_time, car_details,
total_seats, available_seats, fare, instant_booking, joined_ids, joined_seats,
pending_ids, pending_seats, fare_holds, route_distance_m, route_duration_s,
route_geometry, driver_note, status, created_at, updated_at, version`

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	r.Version = 1
	joinedSeats, pendingSeats, holds, err := encodeMaps(r)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		r.ID, r.OwnerID, r.Origin, r.Destination, r.OriginLat, r.OriginLng,
		r.DestinationLat, r.DestinationLng, r.Date, r.ArrivalTime, r.CarDetails,
		r.TotalSeats, r.AvailableSeats, r.Fare, r.InstantBookingEnabled,
		pq.Array(r.JoinedIDs), joinedSeats, pq.Array(r.PendingIDs), pendingSeats, holds,
		r.RouteDistanceMeters, r.RouteDurationSeconds, r.RouteGeometry, r.DriverNote,
		string(r.Status), r.CreatedAt, r.UpdatedAt, r.Version)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// Update writes the ride back only if the stored version still matches the
// one the caller read, bumping the version on success.
func (p *PostgresStore) Update(ctx context.Context, r *models.Ride) error {
	joinedSeats, pendingSeats, holds, err := encodeMaps(r)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET
		origin=$1, destination=$2, origin_lat=$3, origin_lng=$4,
		destination_lat=$5, destination_lng=$6, date=$7, arrival_time=$8,
		car_details=$9, total_seats=$10, available_seats=$11, fare=$12,
		instant_booking=$13, joined_ids=$14, joined_seats=$15, pending_ids=$16,
		pending_seats=$17, fare_holds=$18, route_distance_m=$19,
		route_duration_s=$20, route_geometry=$21, driver_note=$22, status=$23,
		updated_at=$24, version=version+1
		WHERE id=$25 AND version=$26`,
		r.Origin, r.Destination, r.OriginLat, r.OriginLng,
		r.DestinationLat, r.DestinationLng, r.Date, r.ArrivalTime,
		r.CarDetails, r.TotalSeats, r.AvailableSeats, r.Fare,
		r.InstantBookingEnabled, pq.Array(r.JoinedIDs), joinedSeats, pq.Array(r.PendingIDs),
		pendingSeats, holds, r.RouteDistanceMeters,
		r.RouteDurationSeconds, r.RouteGeometry, r.DriverNote, string(r.Status),
		r.UpdatedAt, r.ID, r.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id=$1)`, r.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	r.Version++
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*models.Ride, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.JoinedID != "" {
		add("$%d = ANY(joined_ids)", f.JoinedID)
	}
	if f.Origin != "" {
		add("origin = $%d", f.Origin)
	}
	if f.Destination != "" {
		add("destination = $%d", f.Destination)
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ss[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(ss))
	}
	q := `SELECT ` + rideColumns + ` FROM rides`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var (
		r                                models.Ride
		joinedSeats, pendingSeats, holds []byte
		joined, pending                  pq.StringArray
		status                           string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.Origin, &r.Destination, &r.OriginLat, &r.OriginLng,
		&r.DestinationLat, &r.DestinationLng, &r.Date, &r.ArrivalTime, &r.CarDetails,
		&r.TotalSeats, &r.AvailableSeats, &r.Fare, &r.InstantBookingEnabled,
		&joined, &joinedSeats, &pending, &pendingSeats, &holds,
		&r.RouteDistanceMeters, &r.RouteDurationSeconds, &r.RouteGeometry, &r.DriverNote,
		&status, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	r.JoinedIDs = []string(joined)
	r.PendingIDs = []string(pending)
	r.Status = models.RideStatus(status)
	if err := decodeMap(joinedSeats, &r.JoinedSeats); err != nil {
		return nil, err
	}
	if err := decodeMap(pendingSeats, &r.PendingSeats); err != nil {
		return nil, err
	}
	if err := decodeMap(holds, &r.FareHolds); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeMaps(r *models.Ride) (joinedSeats, pendingSeats, holds []byte, err error) {
	if joinedSeats, err = encodeMap(r.JoinedSeats); err != nil {
		return
	}
	if pendingSeats, err = encodeMap(r.PendingSeats); err != nil {
		return
	}
	holds, err = encodeMap(r.FareHolds)
	return
}

func encodeMap[V any](m map[string]V) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func decodeMap[V any](b []byte, dst *map[string]V) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

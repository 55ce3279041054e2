package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/commute-rides/internal/models"
)

// ErrNoVehicle distinguishes "driver has no vehicle record" from a
// collaborator outage; the offer path maps the two differently.
var ErrNoVehicle = errors.New("no vehicle registered")

// ErrNoEmployee is the soft miss on the enrichment path.
var ErrNoEmployee = errors.New("employee not found")

// EmployeeSource resolves a single employee profile.
type EmployeeSource interface {
	Get(ctx context.Context, empID string) (models.Employee, error)
}

// VehicleSource resolves the driver's vehicle record.
type VehicleSource interface {
	Get(ctx context.Context, empID string) (models.Vehicle, error)
}

// EmployeeClient calls the employee collaborator over HTTP with a bounded
// per-call timeout so one slow lookup cannot stall a listing.
type EmployeeClient struct {
	BaseURL string
	Client  *http.Client
}

func NewEmployeeClient(baseURL string, timeout time.Duration) *EmployeeClient {
	return &EmployeeClient{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (c *EmployeeClient) Get(ctx context.Context, empID string) (models.Employee, error) {
	var emp models.Employee
	err := getJSON(ctx, c.Client, c.BaseURL+"/employee/"+empID, &emp, ErrNoEmployee)
	return emp, err
}

// VehicleClient calls the vehicle collaborator over HTTP.
type VehicleClient struct {
	BaseURL string
	Client  *http.Client
}

func NewVehicleClient(baseURL string, timeout time.Duration) *VehicleClient {
	return &VehicleClient{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (c *VehicleClient) Get(ctx context.Context, empID string) (models.Vehicle, error) {
	var v models.Vehicle
	err := getJSON(ctx, c.Client, c.BaseURL+"/vehicle/"+empID, &v, ErrNoVehicle)
	return v, err
}

func getJSON(ctx context.Context, client *http.Client, url string, out any, missing error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return missing
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("directory: unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

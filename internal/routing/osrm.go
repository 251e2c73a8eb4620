// Package routing resolves road geometry between two coordinates using an
// OSRM-compatible routing service.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ukydev/fleetfusion/internal/models"
)

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// ErrRouteUnavailable wraps every resolution failure. Callers treat network
// errors, bad payloads and empty routes the same way.
var ErrRouteUnavailable = errors.New("route unavailable")

// Resolver returns the road path between origin and destination.
type Resolver interface {
	Resolve(ctx context.Context, origin, destination models.Coordinate) ([]models.Coordinate, error)
}

// OSRMResolver queries the OSRM /route/v1/driving endpoint.
type OSRMResolver struct {
	BaseURL string
	Client  *http.Client
	// Timeout bounds a single request; zero keeps the client default.
	Timeout time.Duration
}

// NewOSRMResolver creates a resolver against baseURL.
func NewOSRMResolver(baseURL string, timeout time.Duration) *OSRMResolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OSRMResolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  http.DefaultClient,
		Timeout: timeout,
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Resolve issues one GET and returns the first route's coordinates verbatim.
func (r *OSRMResolver) Resolve(ctx context.Context, origin, destination models.Coordinate) ([]models.Coordinate, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		r.BaseURL, origin.Lon(), origin.Lat(), destination.Lon(), destination.Lat())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: osrm status %d", ErrRouteUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}

	var obj osrmResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	if obj.Code != "Ok" {
		return nil, fmt.Errorf("%w: osrm code %q", ErrRouteUnavailable, obj.Code)
	}
	if len(obj.Routes) == 0 || len(obj.Routes[0].Geometry.Coordinates) < 2 {
		return nil, fmt.Errorf("%w: no route", ErrRouteUnavailable)
	}

	coords := obj.Routes[0].Geometry.Coordinates
	pts := make([]models.Coordinate, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("%w: malformed coordinate", ErrRouteUnavailable)
		}
		pts = append(pts, models.NewCoordinate(c[0], c[1]))
	}
	return pts, nil
}

// RouteOrFallback resolves a route and substitutes the straight line
// [origin, destination] on any failure. The returned route is never empty.
func RouteOrFallback(ctx context.Context, r Resolver, origin, destination models.Coordinate) ([]models.Coordinate, models.RouteSource, error) {
	if r != nil {
		pts, err := r.Resolve(ctx, origin, destination)
		if err == nil && len(pts) > 0 {
			return pts, models.RouteSourceOSRM, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: empty route", ErrRouteUnavailable)
		}
		return []models.Coordinate{origin, destination}, models.RouteSourceFallback, err
	}
	return []models.Coordinate{origin, destination}, models.RouteSourceFallback, ErrRouteUnavailable
}

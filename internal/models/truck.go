package models

import "github.com/shopspring/decimal"

// Status is the delivery status of a truck within one incident lifecycle.
type Status string

const (
	StatusOnTime   Status = "on-time"
	StatusDelayed  Status = "delayed"
	StatusCritical Status = "critical"
	StatusResolved Status = "resolved"
)

// RouteSource tells whether a route came from the routing service or is the
// straight-line substitute.
type RouteSource string

const (
	RouteSourceOSRM     RouteSource = "osrm"
	RouteSourceFallback RouteSource = "fallback"
)

func (s Status) rank() int {
	switch s {
	case StatusOnTime:
		return 0
	case StatusDelayed:
		return 1
	case StatusCritical:
		return 2
	case StatusResolved:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether a truck may move from s to next. Transitions
// only go forward one step at a time; staying put is allowed.
func (s Status) CanTransition(next Status) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	return to == from || to == from+1
}

// Truck represents a tracked delivery vehicle.
type Truck struct {
	ID          string          `bson:"id" json:"id"`
	Driver      string          `bson:"driver" json:"driver"`
	CargoValue  decimal.Decimal `bson:"-" json:"cargoValue"`
	ContractID  string          `bson:"contract_id" json:"contractId"`
	Velocity    float64         `bson:"velocity" json:"velocity"` // km/h
	Status      Status          `bson:"status" json:"status"`
	Position    Coordinate      `bson:"position" json:"position"`
	Destination Coordinate      `bson:"destination" json:"destination"`
	Route       []Coordinate    `bson:"route" json:"route"`
	RouteSource RouteSource     `bson:"route_source" json:"routeSource"`
	RemainingKm float64         `bson:"remaining_km" json:"remainingKm"`
	ETAHours    float64         `bson:"eta_hours" json:"etaHours"`
}

// Clone returns a deep copy of the truck.
func (t Truck) Clone() Truck {
	t.Route = CloneRoute(t.Route)
	return t
}

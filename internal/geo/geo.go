// Package geo moves trucks along coordinate routes.
package geo

import (
	"math"

	"github.com/ukydev/fleetfusion/internal/models"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(a, b models.Coordinate) float64 {
	dLat := (b.Lat() - a.Lat()) * math.Pi / 180
	dLon := (b.Lon() - a.Lon()) * math.Pi / 180
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return earthRadiusKm * c
}

// Lerp interpolates between a and b; t is clamped to [0, 1].
func Lerp(a, b models.Coordinate, t float64) models.Coordinate {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return models.NewCoordinate(a.Lon()+(b.Lon()-a.Lon())*t, a.Lat()+(b.Lat()-a.Lat())*t)
}

// RouteLengthKm sums the segment lengths of a route.
func RouteLengthKm(route []models.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(route); i++ {
		total += HaversineKm(route[i-1], route[i])
	}
	return total
}

// Cursor tracks progress along a fixed route.
type Cursor struct {
	route     []models.Coordinate
	segIndex  int
	segOffset float64 // km along current segment
	position  models.Coordinate
}

// NewCursor places a cursor at the start of route. route must be non-empty.
func NewCursor(route []models.Coordinate) *Cursor {
	return &Cursor{route: route, position: route[0]}
}

// Position returns the current interpolated position.
func (c *Cursor) Position() models.Coordinate { return c.position }

// Arrived reports whether the cursor sits on the last route point.
func (c *Cursor) Arrived() bool { return c.segIndex >= len(c.route)-1 }

// Advance moves the cursor km kilometres forward, stopping at the destination.
func (c *Cursor) Advance(km float64) models.Coordinate {
	for km > 0 && !c.Arrived() {
		a := c.route[c.segIndex]
		b := c.route[c.segIndex+1]
		segLen := HaversineKm(a, b)
		leftOnSeg := segLen - c.segOffset
		if km >= leftOnSeg {
			c.position = b
			c.segIndex++
			c.segOffset = 0
			km -= leftOnSeg
			continue
		}
		c.segOffset += km
		c.position = Lerp(a, b, c.segOffset/segLen)
		km = 0
	}
	return c.position
}

// RemainingKm is the distance left along the route.
func (c *Cursor) RemainingKm() float64 {
	if c.Arrived() {
		return 0
	}
	rem := HaversineKm(c.route[c.segIndex], c.route[c.segIndex+1]) - c.segOffset
	for i := c.segIndex + 2; i < len(c.route); i++ {
		rem += HaversineKm(c.route[i-1], c.route[i])
	}
	if rem < 0 {
		return 0
	}
	return rem
}

package models

// Coordinate is a [lon, lat] pair. The order is fixed across the whole system
// and matches GeoJSON and the OSRM wire format.
type Coordinate [2]float64

// NewCoordinate builds a Coordinate from longitude and latitude.
func NewCoordinate(lon, lat float64) Coordinate {
	return Coordinate{lon, lat}
}

// Lon returns the longitude.
func (c Coordinate) Lon() float64 { return c[0] }

// Lat returns the latitude.
func (c Coordinate) Lat() float64 { return c[1] }

// CloneRoute returns a copy of route so callers can't alias simulator state.
func CloneRoute(route []Coordinate) []Coordinate {
	if route == nil {
		return nil
	}
	out := make([]Coordinate, len(route))
	copy(out, route)
	return out
}

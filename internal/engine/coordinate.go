package engine

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
)

// ErrInvalidCoordinate is returned for latitudes or longitudes out of range.
var ErrInvalidCoordinate = eris.New("engine: coordinate out of range")

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude" example:"51.505"`
	Lon float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude" example:"-0.09"`
}

// Validate checks the coordinate ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return eris.Wrapf(ErrInvalidCoordinate, "lat=%v lon=%v", c.Lat, c.Lon)
	}
	return nil
}

// Point returns the coordinate as an orb point (lon, lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// DistanceTo returns the great-circle distance in meters.
func (c Coordinate) DistanceTo(o Coordinate) float64 {
	return geo.Distance(c.Point(), o.Point())
}

// Near reports whether o is within tolerance meters of c.
func (c Coordinate) Near(o Coordinate, tolerance float64) bool {
	return c.DistanceTo(o) <= tolerance
}

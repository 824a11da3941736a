package model

// Location is a WGS84 point, kept as a flat value type since every caller
// on the matching hot path needs Lat/Lon as float64, not a slice index into
// a GeoJSON-style coordinates array.
type Location struct {
	Lat float64
	Lon float64
}

// Segment is one straight-line piece of a StopPath's shape.
type Segment struct {
	A, B         Location
	LengthMeters float64
}

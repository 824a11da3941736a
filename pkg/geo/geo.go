// Package geo implements the geometry and schedule-time primitives: stop-path
// segment distance math and epoch-time resolution with day wrap.
//
// The projection math is a 2D line-segment projection generalised to metres
// via an equirectangular local projection around the segment's latitude
// rather than a flat lon/lat-as-cartesian approximation, since the spatial
// radii used for matching are specified in metres.
package geo

import (
	"math"

	"github.com/transitcore/avlcore/pkg/model"
)

const earthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between two points in metres.
func Distance(a, b model.Location) float64 {
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b model.Location) float64 {
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	theta := math.Atan2(y, x)
	return math.Mod(toDegrees(theta)+360, 360)
}

// HeadingDifference returns the smallest angle in degrees [0, 180] between
// two headings.
func HeadingDifference(h1, h2 float64) float64 {
	diff := math.Abs(h1 - h2)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// localMetersPerDegree gives an equirectangular approximation good for the
// scale of a single stop-path segment (tens to low-hundreds of metres).
func localMetersPerDegree(atLat float64) (perDegLat, perDegLon float64) {
	perDegLat = (math.Pi / 180) * earthRadiusMeters
	perDegLon = perDegLat * math.Cos(toRadians(atLat))
	return
}

// ProjectToSegment returns the perpendicular distance from p to the segment
// a-b (metres), the distance along the segment from a to the projected
// point (metres, clamped to [0, segment length]), and the segment's own
// length (metres).
func ProjectToSegment(p, a, b model.Location) (perpDistanceM, alongDistanceM, segmentLengthM float64) {
	latForProjection := a.Lat
	mPerDegLat, mPerDegLon := localMetersPerDegree(latForProjection)

	ax, ay := 0.0, 0.0
	bx := (b.Lon - a.Lon) * mPerDegLon
	by := (b.Lat - a.Lat) * mPerDegLat
	px := (p.Lon - a.Lon) * mPerDegLon
	py := (p.Lat - a.Lat) * mPerDegLat

	cx, cy := bx-ax, by-ay
	segLenSq := cx*cx + cy*cy
	segLen := math.Sqrt(segLenSq)

	if segLenSq == 0 {
		dx, dy := px-ax, py-ay
		return math.Sqrt(dx*dx + dy*dy), 0, 0
	}

	t := (px*cx + py*cy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	projX := ax + t*cx
	projY := ay + t*cy

	dx, dy := px-projX, py-projY
	perpDistanceM = math.Sqrt(dx * dx + dy * dy)
	alongDistanceM = t * segLen
	segmentLengthM = segLen

	return
}

package model

import "time"

// ScheduledTime is a nullable arrival/departure pair expressed as seconds
// since midnight of the service day. Non-timepoint stops carry neither.
type ScheduledTime struct {
	ArrivalSec   *int
	DepartureSec *int
}

func (s ScheduledTime) HasArrival() bool   { return s.ArrivalSec != nil }
func (s ScheduledTime) HasDeparture() bool { return s.DepartureSec != nil }
func (s ScheduledTime) IsZero() bool       { return s.ArrivalSec == nil && s.DepartureSec == nil }

// TravelTimesForStopPath decomposes the traversal of a StopPath into
// per-segment travel durations plus the dwell ("stop") time at the
// destination stop, recovered from transitime's TravelTimesForStopPath so
// that interpolation along a stop path is exact rather than a single
// opaque duration spread evenly across the path.
type TravelTimesForStopPath struct {
	SegmentTravelTimes []time.Duration
	StopTimeMs         int64
}

func (t TravelTimesForStopPath) Total() time.Duration {
	var sum time.Duration
	for _, d := range t.SegmentTravelTimes {
		sum += d
	}
	return sum
}

// StopPath is the geometry + schedule between two consecutive stops of a Trip.
type StopPath struct {
	Index int

	StopID string

	Segments []Segment

	Scheduled ScheduledTime

	TravelTimes TravelTimesForStopPath

	// IsWaitStop marks a stop where the vehicle is expected to hold until its
	// scheduled departure (layover/terminal).
	IsWaitStop bool
	// IsLayover widens the spatial match radius and disables the heading
	// check; MatchToLayoverStopEvenIfOffRoute does not consult it.
	IsLayover bool
}

func (sp *StopPath) LengthMeters() float64 {
	var total float64
	for _, seg := range sp.Segments {
		total += seg.LengthMeters
	}
	return total
}

// Trip is an ordered, directional run of StopPaths within a Block.
type Trip struct {
	ID    string
	Index int

	RouteID string

	StopPaths []*StopPath
}

func (t *Trip) FirstStopPath() *StopPath {
	if len(t.StopPaths) == 0 {
		return nil
	}
	return t.StopPaths[0]
}

func (t *Trip) LastStopPath() *StopPath {
	if len(t.StopPaths) == 0 {
		return nil
	}
	return t.StopPaths[len(t.StopPaths)-1]
}

// NextScheduledStopPath returns the first StopPath at or after fromIndex
// that carries a scheduled time.
func (t *Trip) NextScheduledStopPath(fromIndex int) (*StopPath, bool) {
	for i := fromIndex; i < len(t.StopPaths); i++ {
		if !t.StopPaths[i].Scheduled.IsZero() {
			return t.StopPaths[i], true
		}
	}
	return nil, false
}

// Block is a day-scoped vehicle duty: an ordered sequence of Trips.
type Block struct {
	ID        string
	ServiceID string

	StartTimeSec int
	EndTimeSec   int

	Trips []*Trip

	// Exclusive mirrors Block.should_be_exclusive(). Most fixed-route blocks
	// are exclusive; some agencies run non-exclusive "extra board" blocks
	// that several vehicles may share without triggering the exclusivity
	// sweep.
	Exclusive bool
}

func (b *Block) ShouldBeExclusive() bool { return b.Exclusive }

// IsActive reports whether t falls within the block's active window,
// allowing for trips that run past midnight (EndTimeSec may exceed 86400).
func (b *Block) IsActive(t time.Time) bool {
	secOfDay := SecondsOfDay(t)
	if b.EndTimeSec <= 86400 {
		return secOfDay >= b.StartTimeSec && secOfDay <= b.EndTimeSec
	}
	// Block wraps past midnight: active either late tonight or early
	// tomorrow morning relative to the nominal service day.
	return secOfDay >= b.StartTimeSec || secOfDay <= b.EndTimeSec-86400
}

// TripsCurrentlyActive returns the trips of this block that could plausibly
// contain the report's position in time.
func (b *Block) TripsCurrentlyActive(report AvlReport) []*Trip {
	if !b.IsActive(report.Time()) {
		return nil
	}
	return b.Trips
}

func (b *Block) TripByID(tripID string) (*Trip, bool) {
	for _, t := range b.Trips {
		if t.ID == tripID {
			return t, true
		}
	}
	return nil, false
}

// SecondsOfDay converts a wall-clock time to seconds since local midnight.
func SecondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// Stop is the minimal static stop record the core needs: identity + location.
// A richer Stop record (name, platform, accessibility, ...) lives entirely
// behind the Schedule interface and is out of scope here.
type Stop struct {
	ID       string
	Name     string
	Location Location
}

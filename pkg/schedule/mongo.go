package schedule

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/transitcore/avlcore/pkg/model"
)

// Mongo is a read-through Schedule adapter over MongoDB, using bson.M
// filters and startup index creation. It caches decoded blocks in an Arena
// per service day since results are stable for the service day — repeated
// lookups within a day hit memory, not Mongo.
type Mongo struct {
	db    *mongo.Database
	cache *Arena
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db, cache: NewArena()}
}

func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	blocks := m.db.Collection("blocks")
	_, err := blocks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "blockid", Value: 1}}},
		{Keys: bson.D{{Key: "serviceid", Value: 1}, {Key: "trips.routeid", Value: 1}}},
	}, options.CreateIndexes())
	return err
}

type blockDocument struct {
	BlockID      string `bson:"blockid"`
	ServiceID    string `bson:"serviceid"`
	StartTimeSec int    `bson:"starttimesec"`
	EndTimeSec   int    `bson:"endtimesec"`
	Exclusive    bool   `bson:"exclusive"`
	Trips        []tripDocument
}

type tripDocument struct {
	TripID    string `bson:"tripid"`
	RouteID   string `bson:"routeid"`
	StopPaths []stopPathDocument
}

type stopPathDocument struct {
	StopID       string  `bson:"stopid"`
	ArrivalSec   *int    `bson:"arrivalsec,omitempty"`
	DepartureSec *int    `bson:"departuresec,omitempty"`
	IsWaitStop   bool    `bson:"iswaitstop"`
	IsLayover    bool    `bson:"islayover"`
	StopTimeMs   int64   `bson:"stoptimems"`
	Segments     []segmentDocument
}

type segmentDocument struct {
	ALat, ALon, BLat, BLon float64
	LengthMeters           float64
	TravelTimeMs           int64
}

func toModelBlock(d blockDocument) *model.Block {
	block := &model.Block{
		ID:           d.BlockID,
		ServiceID:    d.ServiceID,
		StartTimeSec: d.StartTimeSec,
		EndTimeSec:   d.EndTimeSec,
		Exclusive:    d.Exclusive,
	}
	for ti, td := range d.Trips {
		trip := &model.Trip{ID: td.TripID, Index: ti, RouteID: td.RouteID}
		for si, spd := range td.StopPaths {
			sp := &model.StopPath{
				Index:      si,
				StopID:     spd.StopID,
				IsWaitStop: spd.IsWaitStop,
				IsLayover:  spd.IsLayover,
				Scheduled: model.ScheduledTime{
					ArrivalSec:   spd.ArrivalSec,
					DepartureSec: spd.DepartureSec,
				},
				TravelTimes: model.TravelTimesForStopPath{
					StopTimeMs: spd.StopTimeMs,
				},
			}
			for _, seg := range spd.Segments {
				sp.Segments = append(sp.Segments, model.Segment{
					A:            model.Location{Lat: seg.ALat, Lon: seg.ALon},
					B:            model.Location{Lat: seg.BLat, Lon: seg.BLon},
					LengthMeters: seg.LengthMeters,
				})
				sp.TravelTimes.SegmentTravelTimes = append(sp.TravelTimes.SegmentTravelTimes, time.Duration(seg.TravelTimeMs)*time.Millisecond)
			}
			trip.StopPaths = append(trip.StopPaths, sp)
		}
		block.Trips = append(block.Trips, trip)
	}
	return block
}

func (m *Mongo) GetBlocksForRoute(serviceID, routeID string) []*model.Block {
	if cached := m.cache.GetBlocksForRoute(serviceID, routeID); len(cached) > 0 {
		return cached
	}

	ctx := context.Background()
	blocksCollection := m.db.Collection("blocks")

	cursor, err := blocksCollection.Find(ctx, bson.M{
		"serviceid":    serviceID,
		"trips.routeid": routeID,
	})
	if err != nil {
		return nil
	}
	defer cursor.Close(ctx)

	var out []*model.Block
	for cursor.Next(ctx) {
		var doc blockDocument
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		out = append(out, toModelBlock(doc))
	}

	m.cache.LoadBlocks(routeID, out)
	return out
}

func (m *Mongo) GetStop(stopID string) (*model.Stop, bool) {
	if s, ok := m.cache.GetStop(stopID); ok {
		return s, ok
	}

	ctx := context.Background()
	stopsCollection := m.db.Collection("stops")

	var doc struct {
		StopID string  `bson:"stopid"`
		Name   string  `bson:"name"`
		Lat    float64 `bson:"lat"`
		Lon    float64 `bson:"lon"`
	}
	err := stopsCollection.FindOne(ctx, bson.M{"stopid": stopID}).Decode(&doc)
	if err != nil {
		return nil, false
	}

	stop := &model.Stop{ID: doc.StopID, Name: doc.Name, Location: model.Location{Lat: doc.Lat, Lon: doc.Lon}}
	m.cache.LoadStops([]*model.Stop{stop})
	return stop, true
}

func (m *Mongo) ServiceIDsFor(date time.Time) []string {
	if ids := m.cache.ServiceIDsFor(date); len(ids) > 0 {
		return ids
	}

	ctx := context.Background()
	calendarCollection := m.db.Collection("service_calendar")

	dateKey := date.Format("2006-01-02")
	var doc struct {
		ServiceIDs []string `bson:"serviceids"`
	}
	err := calendarCollection.FindOne(ctx, bson.M{"date": dateKey}).Decode(&doc)
	if err != nil {
		return nil
	}

	m.cache.LoadServiceDay(dateKey, doc.ServiceIDs)
	return doc.ServiceIDs
}

func (m *Mongo) TripByID(tripID string) (*model.Trip, *model.Block, bool) {
	if trip, block, ok := m.cache.TripByID(tripID); ok {
		return trip, block, ok
	}

	ctx := context.Background()
	blocksCollection := m.db.Collection("blocks")

	var doc blockDocument
	err := blocksCollection.FindOne(ctx, bson.M{"trips.tripid": tripID}).Decode(&doc)
	if err != nil {
		return nil, nil, false
	}

	block := toModelBlock(doc)
	m.cache.LoadBlocks("", []*model.Block{block})
	return m.cache.TripByID(tripID)
}

func (m *Mongo) BlockByID(blockID string, serviceIDs []string) (*model.Block, bool) {
	if b, ok := m.cache.BlockByID(blockID, serviceIDs); ok {
		return b, ok
	}

	ctx := context.Background()
	blocksCollection := m.db.Collection("blocks")

	var doc blockDocument
	err := blocksCollection.FindOne(ctx, bson.M{
		"blockid":   blockID,
		"serviceid": bson.M{"$in": serviceIDs},
	}).Decode(&doc)
	if err != nil {
		return nil, false
	}

	block := toModelBlock(doc)
	m.cache.LoadBlocks("", []*model.Block{block})
	return block, true
}

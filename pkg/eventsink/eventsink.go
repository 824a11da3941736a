// Package eventsink defines the EventSink boundary and ships a NoopSink
// plus an Elastic adapter built on a bulk indexer.
package eventsink

import (
	"context"

	"github.com/transitcore/avlcore/pkg/model"
)

// EventSink is write-only, at-least-once; the receiver must dedupe on
// (vehicle_id, epoch_ms, kind).
type EventSink interface {
	Publish(ctx context.Context, event model.VehicleEvent)
	Close() error
}

// NoopSink discards every event. Used by tests and cmd/avlcore replay.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, model.VehicleEvent) {}
func (NoopSink) Close() error                                { return nil }

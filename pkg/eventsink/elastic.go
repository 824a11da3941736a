package eventsink

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog/log"

	"github.com/transitcore/avlcore/pkg/model"
)

// Elastic publishes VehicleEvents through a bulk indexer, grounded on the
// teacher's elastic_client/connection.go (esutil.BulkIndexer with
// exponential backoff on transient failures).
type Elastic struct {
	indexer esutil.BulkIndexer
	index   string
}

type ElasticConfig struct {
	Addresses     []string
	Index         string
	FlushInterval time.Duration
	FlushBytes    int
}

func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Addresses})
	if err != nil {
		return nil, err
	}

	flushInterval := cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}
	flushBytes := cfg.FlushBytes
	if flushBytes == 0 {
		flushBytes = 5 * 1024 * 1024
	}

	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		Index:         cfg.Index,
		FlushInterval: flushInterval,
		FlushBytes:    flushBytes,
		OnError: func(_ context.Context, err error) {
			log.Error().Err(err).Msg("eventsink: bulk indexer error")
		},
	})
	if err != nil {
		return nil, err
	}

	return &Elastic{indexer: indexer, index: cfg.Index}, nil
}

// Publish enqueues event onto the bulk indexer, retrying the enqueue itself
// (not the indexing) with exponential backoff since esutil.BulkIndexer.Add
// can transiently block if its internal queue is full.
func (e *Elastic) Publish(ctx context.Context, event model.VehicleEvent) {
	body, err := json.Marshal(elasticEventDocument(event))
	if err != nil {
		log.Error().Err(err).Str("vehicle_id", event.Report.VehicleID).Msg("eventsink: marshal failed")
		return
	}

	docID := dedupeKey(event)

	op := func() error {
		return e.indexer.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: docID,
			Body:       bytes.NewReader(body),
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				log.Error().Err(err).Str("vehicle_id", event.Report.VehicleID).Int("status", res.Status).Msg("eventsink: index failed")
			},
		})
	}

	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		log.Error().Err(err).Msg("eventsink: enqueue failed after retries")
	}
}

func (e *Elastic) Close() error {
	return e.indexer.Close(context.Background())
}

// dedupeKey deduplicates on (vehicle_id, epoch_ms, kind) by using that
// tuple directly as the document ID, which Elasticsearch upserts
// idempotently on retry/redelivery.
func dedupeKey(event model.VehicleEvent) string {
	return event.Report.VehicleID + "|" + timeKey(event.Report.EpochMs) + "|" + string(event.Kind)
}

func timeKey(epochMs int64) string {
	return time.UnixMilli(epochMs).UTC().Format(time.RFC3339Nano)
}

type elasticEventFields struct {
	VehicleID           string  `json:"vehicle_id"`
	EpochMs             int64   `json:"epoch_ms"`
	Kind                string  `json:"kind"`
	Description         string  `json:"description"`
	Predictable         bool    `json:"predictable"`
	BecameUnpredictable bool    `json:"became_unpredictable"`
	Supervisor          *string `json:"supervisor,omitempty"`
	NextStopID          string  `json:"next_stop_id,omitempty"`
	BlockID             string  `json:"block_id,omitempty"`
	CreatedAt           string  `json:"created_at"`
}

func elasticEventDocument(event model.VehicleEvent) elasticEventFields {
	var blockID string
	if event.Match != nil && event.Match.Block != nil {
		blockID = event.Match.Block.ID
	}
	return elasticEventFields{
		VehicleID:           event.Report.VehicleID,
		EpochMs:             event.Report.EpochMs,
		Kind:                string(event.Kind),
		Description:         event.Description,
		Predictable:         event.Predictable,
		BecameUnpredictable: event.BecameUnpredictable,
		Supervisor:          event.Supervisor,
		NextStopID:          event.NextStopID,
		BlockID:             blockID,
		CreatedAt:           event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Package ingest drives the AVL feed into the orchestrator: a
// sourcegraph/conc worker pool pulling batches off an adjust/rmq/v5
// Redis-backed queue. Ordering within a vehicle is the caller's
// responsibility (the feed must enqueue a vehicle's reports in order),
// since the orchestrator itself only serializes concurrent access, it does
// not reorder.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/transitcore/avlcore/pkg/model"
	"github.com/transitcore/avlcore/pkg/orchestrator"
)

const queueName = "avlcore-avl-reports"

// Consumer wires an rmq queue to a worker pool that hands each report to
// the orchestrator.
type Consumer struct {
	processor *orchestrator.Processor
	workers   int
	batchSize int64
	timeout   time.Duration
}

func NewConsumer(processor *orchestrator.Processor, workers int, batchSize int64) *Consumer {
	return &Consumer{processor: processor, workers: workers, batchSize: batchSize, timeout: 5 * time.Second}
}

// StartConsumers opens a connection, the queue, and registers the
// configured number of batch consumers against it.
func (c *Consumer) StartConsumers(ctx context.Context, redisAddr string) (rmq.Connection, error) {
	errChan := make(chan error, 16)
	go func() {
		for err := range errChan {
			log.Error().Err(err).Msg("ingest: rmq error")
		}
	}()

	conn, err := rmq.OpenConnection("avlcore-consumer", "tcp", redisAddr, 1, errChan)
	if err != nil {
		return nil, err
	}

	queue, err := conn.OpenQueue(queueName)
	if err != nil {
		return nil, err
	}

	if err := queue.StartConsuming(c.batchSize, c.timeout); err != nil {
		return nil, err
	}

	for i := 0; i < c.workers; i++ {
		if _, err := queue.AddBatchConsumer(queueName, c.batchSize, c.timeout, c); err != nil {
			return nil, err
		}
	}

	return conn, nil
}

// Consume implements rmq.BatchConsumer, fanning the batch's deliveries
// across a bounded worker pool so reports for distinct vehicles are matched
// concurrently while the orchestrator's per-vehicle lock still serializes
// same-vehicle reports.
func (c *Consumer) Consume(batch rmq.Deliveries) {
	p := pool.New().WithMaxGoroutines(c.workers)

	for _, delivery := range batch {
		delivery := delivery
		p.Go(func() {
			var report model.AvlReport
			if err := json.Unmarshal([]byte(delivery.Payload()), &report); err != nil {
				log.Error().Err(err).Msg("ingest: malformed AVL report, rejecting")
				_ = delivery.Reject()
				return
			}

			c.processor.ProcessReport(context.Background(), report)
			_ = delivery.Ack()
		})
	}

	p.Wait()
}

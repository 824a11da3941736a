package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kr/pretty"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/transitcore/avlcore/pkg/config"
	"github.com/transitcore/avlcore/pkg/eventsink"
	"github.com/transitcore/avlcore/pkg/ingest"
	"github.com/transitcore/avlcore/pkg/matchprocessor"
	"github.com/transitcore/avlcore/pkg/model"
	"github.com/transitcore/avlcore/pkg/orchestrator"
	"github.com/transitcore/avlcore/pkg/schedule"
	"github.com/transitcore/avlcore/pkg/timeout"
	"github.com/transitcore/avlcore/pkg/vehiclecache"
	"github.com/transitcore/avlcore/pkg/vehiclestate"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "avlcore",
		Usage: "AVL processing core: ingest vehicle position reports, maintain block matches and schedule adherence",
		Commands: []*cli.Command{
			runCommand(),
			replayCommand(),
			inspectVehicleCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("avlcore: fatal error")
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "consume the AVL feed and run the processing core",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "redis-addr", Value: "localhost:6379", EnvVars: []string{"AVLCORE_REDIS_ADDR"}},
			&cli.IntFlag{Name: "workers", Value: 8, EnvVars: []string{"AVLCORE_WORKERS"}},
			&cli.Int64Flag{Name: "batch-size", Value: 32, EnvVars: []string{"AVLCORE_BATCH_SIZE"}},
			&cli.StringFlag{Name: "cache-backend", Value: "memory", Usage: "memory|redis", EnvVars: []string{"AVLCORE_CACHE_BACKEND"}},
			&cli.StringFlag{Name: "cache-redis-addr", Value: "localhost:6379", EnvVars: []string{"AVLCORE_CACHE_REDIS_ADDR"}},
			&cli.StringFlag{Name: "sink-backend", Value: "noop", Usage: "noop|elastic", EnvVars: []string{"AVLCORE_SINK_BACKEND"}},
			&cli.StringSliceFlag{Name: "elastic-addr", Value: cli.NewStringSlice("http://localhost:9200"), EnvVars: []string{"AVLCORE_ELASTIC_ADDR"}},
			&cli.StringFlag{Name: "elastic-index", Value: "avlcore-events", EnvVars: []string{"AVLCORE_ELASTIC_INDEX"}},
			&cli.StringFlag{Name: "schedule-backend", Value: "arena", Usage: "arena|mongo", EnvVars: []string{"AVLCORE_SCHEDULE_BACKEND"}},
			&cli.StringFlag{Name: "mongo-uri", Value: "mongodb://localhost:27017", EnvVars: []string{"AVLCORE_MONGO_URI"}},
			&cli.StringFlag{Name: "mongo-database", Value: "avlcore", EnvVars: []string{"AVLCORE_MONGO_DATABASE"}},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			store := vehiclestate.NewStore()

			cache, err := buildCache(c)
			if err != nil {
				return err
			}

			sink, err := buildSink(c)
			if err != nil {
				return err
			}
			defer sink.Close()

			sched, err := buildSchedule(ctx, c)
			if err != nil {
				return err
			}

			var knownIDs []string
			sweeper := timeout.NewSweeper(store, config.Load().MaxStale, 30*time.Second, func() []string { return knownIDs })
			go sweeper.Run(ctx)

			processor := orchestrator.NewProcessor(sched, store, sink, cache, matchprocessor.Logging{}, config.Load)

			consumer := ingest.NewConsumer(processor, c.Int("workers"), c.Int64("batch-size"))
			conn, err := consumer.StartConsumers(ctx, c.String("redis-addr"))
			if err != nil {
				return err
			}
			defer conn.StopAllConsuming()

			log.Info().Msg("avlcore: consuming AVL feed")
			<-ctx.Done()
			return nil
		},
	}
}

// buildCache selects the VehicleDataCache adapter behind --cache-backend:
// memory (the default, used by tests and replay) or redis
// (eko/gocache + go-redis/v9, matching vehiclecache.Redis's cache-aside
// shape).
func buildCache(c *cli.Context) (vehiclecache.VehicleDataCache, error) {
	switch c.String("cache-backend") {
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{c.String("cache-redis-addr")}})
		return vehiclecache.NewRedis(client, 10*time.Minute), nil
	case "memory", "":
		return vehiclecache.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache-backend %q", c.String("cache-backend"))
	}
}

// buildSink selects the EventSink adapter behind --sink-backend: noop (the
// default, used by tests and replay) or elastic (esutil bulk indexer with
// exponential backoff on transient failures, see eventsink.Elastic).
func buildSink(c *cli.Context) (eventsink.EventSink, error) {
	switch c.String("sink-backend") {
	case "elastic":
		return eventsink.NewElastic(eventsink.ElasticConfig{
			Addresses: c.StringSlice("elastic-addr"),
			Index:     c.String("elastic-index"),
		})
	case "noop", "":
		return eventsink.NoopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown sink-backend %q", c.String("sink-backend"))
	}
}

// buildSchedule selects the Schedule adapter behind --schedule-backend:
// arena (in-memory, used by tests and replay) or mongo (schedule.Mongo,
// ensuring its indexes once on connect).
func buildSchedule(ctx context.Context, c *cli.Context) (schedule.Schedule, error) {
	switch c.String("schedule-backend") {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.String("mongo-uri")))
		if err != nil {
			return nil, err
		}
		m := schedule.NewMongo(client.Database(c.String("mongo-database")))
		if err := m.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case "arena", "":
		return schedule.NewArena(), nil
	default:
		return nil, fmt.Errorf("unknown schedule-backend %q", c.String("schedule-backend"))
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "replay a newline-delimited JSON AVL report file through the core without any network dependency",
		Args:  true,
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("usage: avlcore replay <file.ndjson>")
			}

			store := vehiclestate.NewStore()
			cache := vehiclecache.NewMemory()
			sink := eventsink.NoopSink{}
			sched := schedule.NewArena()

			processor := orchestrator.NewProcessor(sched, store, sink, cache, matchprocessor.Logging{}, config.Load)

			reports, err := loadReports(path)
			if err != nil {
				return err
			}

			for _, report := range reports {
				processor.ProcessReport(context.Background(), report)
			}

			log.Info().Int("reports", len(reports)).Msg("avlcore: replay complete")
			return nil
		},
	}
}

func inspectVehicleCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-vehicle",
		Usage: "dump a vehicle's current state snapshot from the outward cache, grounded on testidentify's debug-dump pattern",
		Args:  true,
		Action: func(c *cli.Context) error {
			vehicleID := c.Args().First()
			if vehicleID == "" {
				return fmt.Errorf("usage: avlcore inspect-vehicle <vehicle-id>")
			}

			cache := vehiclecache.NewMemory()
			snapshot, ok := cache.GetVehicle(vehicleID)
			if !ok {
				fmt.Printf("no snapshot known for vehicle %q\n", vehicleID)
				return nil
			}

			fmt.Printf("%# v\n", pretty.Formatter(snapshot))
			return nil
		},
	}
}

// loadReports reads one JSON-encoded AvlReport per line, the format
// `replay` expects.
func loadReports(path string) ([]model.AvlReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reports []model.AvlReport
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var report model.AvlReport
		if err := json.Unmarshal(line, &report); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, scanner.Err()
}

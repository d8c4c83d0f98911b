// The consumer folds trip events into per-station throughput stats in
// Redis, feeding station dashboards without touching the fare path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/khaledhegab/ets-backend-final/internal/config"
	"github.com/khaledhegab/ets-backend-final/internal/logging"
	"github.com/khaledhegab/ets-backend-final/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_trip_events_consumed_total",
		Help: "Total trip events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_trip_events_invalid_total",
		Help: "Total undecodable events received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis stat updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, _ := config.LoadConsumerConfig()
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	stats := &redisStats{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev models.TripEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid trip event", "error", err)
			continue
		}

		if err := applyWithRetry(ctx, stats, ev, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error("redis stat update failed", "trip_id", ev.TripID, "error", err)
			continue
		}
		redisUpdates.Inc()
	}
}

// StatsUpdater is the subset of redis operations the consumer needs,
// split out so tests can fake it.
type StatsUpdater interface {
	Apply(ctx context.Context, ev models.TripEvent) error
}

type redisStats struct{ c *redis.Client }

// Apply bumps the per-station counters: entries/exits, riders through,
// and revenue settled at this station.
func (r *redisStats) Apply(ctx context.Context, ev models.TripEvent) error {
	key := statsKey(ev.StationID)
	pipe := r.c.Pipeline()
	switch ev.Type {
	case "trip.started":
		pipe.HIncrBy(ctx, key, "entries", 1)
		pipe.HIncrBy(ctx, key, "riders_in", int64(ev.PartySize))
	case "trip.ended":
		pipe.HIncrBy(ctx, key, "exits", 1)
		pipe.HIncrBy(ctx, key, "riders_out", int64(ev.PartySize))
		pipe.HIncrBy(ctx, key, "revenue", ev.Amount)
	default:
		return nil
	}
	pipe.HSet(ctx, key, "updated", time.Now().Format(time.RFC3339))
	_, err := pipe.Exec(ctx)
	return err
}

func applyWithRetry(ctx context.Context, stats StatsUpdater, ev models.TripEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = stats.Apply(ctx, ev)
		if err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

func statsKey(stationID int) string {
	return "station:stats:" + strconv.Itoa(stationID)
}

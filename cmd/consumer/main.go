package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/ingest"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total lifecycle events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	historyUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_history_updates_total",
		Help: "Total successful order history updates",
	})
	historyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_history_errors_total",
		Help: "Total order history update errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, historyUpdates, historyErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokers := []string{"localhost:9092"}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		brokers = brokers[:0]
		for _, b := range strings.Split(env, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "order-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ride-dispatch-consumer"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: os.Getenv("REDIS_PASSWORD")})
	writer := &redisHistory{c: rc}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var ev ingest.LifecycleEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.OrderID == "" {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		if err := recordHistoryWithRetry(ctx, writer, &ev, 3, 200*time.Millisecond); err != nil {
			historyErrors.Inc()
			log.Printf("history update failed for order=%s: %v", ev.OrderID, err)
			continue
		}
		historyUpdates.Inc()
	}
}

// HistoryWriter defines the small subset of redis operations we need for tests and production.
type HistoryWriter interface {
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	SAdd(ctx context.Context, key string, member string) error
}

type redisHistory struct{ c *redis.Client }

func (r *redisHistory) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

func (r *redisHistory) SAdd(ctx context.Context, key string, member string) error {
	_, err := r.c.SAdd(ctx, key, member).Result()
	return err
}

// recordHistoryWithRetry mirrors each lifecycle event into the order history
// hash and indexes the order under its client, with retry/backoff.
func recordHistoryWithRetry(ctx context.Context, hw HistoryWriter, ev *ingest.LifecycleEvent, attempts int, delay time.Duration) error {
	fields := map[string]interface{}{
		"status":      ev.Status,
		"last_event":  ev.Type,
		"client_id":   ev.ClientID,
		"price":       ev.Price,
		"distance_km": ev.Distance,
		"updated_at":  ev.At.Format(time.RFC3339),
	}
	if ev.DriverID != "" {
		fields["driver_id"] = ev.DriverID
		fields["driver_name"] = ev.DriverName
	}
	if ev.CompletedAt != nil {
		fields["completed_at"] = ev.CompletedAt.Format(time.RFC3339)
	}

	for i := 0; i < attempts; i++ {
		if err := hw.HSet(ctx, "order:history:"+ev.OrderID, fields); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := hw.SAdd(ctx, "client:orders:"+ev.ClientID, ev.OrderID); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}

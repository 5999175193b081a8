package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/rooms"
	"github.com/example/ride-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	var store storage.OrderStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, log)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
		log.Info("using postgres order store")
	} else {
		store = storage.NewMemoryStore()
		log.Warn("PG_DSN not set, orders are kept in memory only")
	}

	var broker notify.Broker
	if cfg.RedisAddr != "" {
		rb := notify.NewRedisBroker(cfg.RedisAddr, cfg.RedisPassword, log)
		defer rb.Close()
		broker = rb
		log.Info("using redis push broker", "addr", cfg.RedisAddr)
	} else {
		broker = notify.NewMemoryBroker()
		log.Warn("REDIS_ADDR not set, push events stay within this instance")
	}

	rates := pricing.Rates{
		models.VehicleCar:        cfg.RateCar,
		models.VehicleVan:        cfg.RateVan,
		models.VehicleHorseDrawn: cfg.RateHorseDrawn,
	}

	engine := dispatch.NewEngine(store, broker, rooms.NewHub(log), rates, cfg.PollInterval, log)

	if cfg.RouteURL != "" {
		rc := geo.NewRouteClient(cfg.RouteURL)
		engine.Distance = func(from, to models.Coord) float64 {
			km, err := rc.DistanceKm(from, to)
			if err != nil {
				log.Warn("route lookup failed, falling back to haversine", "error", err)
				return geo.DistanceKm(from, to)
			}
			return km
		}
		log.Info("using road distances", "route_url", cfg.RouteURL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		engine.SetStream(producer)
		log.Info("publishing lifecycle events", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(engine, log),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	engine.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// runMigrations applies the bundled schema when MIGRATE=true. Failures are
// logged but not fatal so an already-migrated database does not block boot.
func runMigrations(dsn string, log *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()

	b, err := os.ReadFile(filepath.Join("migrations", "001_create_orders.sql"))
	if err != nil {
		log.Error("migration read failed", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Error("migration exec failed", "error", err)
		return
	}
	log.Info("migration applied", "file", "001_create_orders.sql")
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fixitnow/bookings/internal/catalog"
	"github.com/fixitnow/bookings/internal/http/handlers"
	"github.com/fixitnow/bookings/internal/identity"
	"github.com/fixitnow/bookings/internal/lifecycle"
	"github.com/fixitnow/bookings/internal/session"
	"github.com/fixitnow/bookings/internal/store"
	"github.com/fixitnow/bookings/pkg/config"
	"github.com/fixitnow/bookings/pkg/database"
	"github.com/fixitnow/bookings/pkg/events"
	"github.com/fixitnow/bookings/pkg/logger"
	mw "github.com/fixitnow/bookings/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	// Booking store: Postgres when configured, in-memory otherwise.
	var bookingStore store.BookingStore
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to ensure schema", "error", err)
			os.Exit(1)
		}
		bookingStore = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory booking store")
		bookingStore = store.NewMemoryStore()
	}

	// Event bus: NATS transport behind the reliable publisher.
	transport, err := events.NewNATSTransport(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer transport.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	publisher := events.NewPublisher(transport,
		&events.RedisSink{Client: redisClient, Key: cfg.Bus.DeadLetterKey},
		events.PublisherOptions{
			MaxAttempts: cfg.Bus.MaxAttempts,
			BackoffBase: cfg.Bus.BackoffBase,
			BackoffCap:  cfg.Bus.BackoffCap,
		})

	// Core wiring.
	catalogClient := catalog.NewHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	engine := lifecycle.NewEngine(bookingStore, catalogClient, publisher)

	registry := session.NewRegistry(bookingStore, cfg.Session.RelayBuffer)
	if err := registry.BindBus(transport); err != nil {
		logger.Error("Failed to subscribe session registry", "error", err)
		os.Exit(1)
	}
	history := session.NewRedisHistory(redisClient, cfg.Session.HistoryLimit, cfg.Session.HistoryTTL)
	relay := session.NewRelay(history)

	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret)
	h := handlers.New(engine, registry, relay, history, verifier)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting bookings service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down bookings service")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	publisher.Flush()
}

package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fixitnow/bookings/internal/notify"
	"github.com/fixitnow/bookings/pkg/config"
	"github.com/fixitnow/bookings/pkg/events"
	"github.com/fixitnow/bookings/pkg/logger"
	mw "github.com/fixitnow/bookings/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

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

	consumer := notify.NewConsumer(transport, redisClient)
	if err := consumer.Start(); err != nil {
		logger.Error("Failed to subscribe to booking events", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Health)

	logger.Info("Starting notify service", "port", "8086")
	if err := http.ListenAndServe(":8086", r); err != nil {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}

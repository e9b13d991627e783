package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/retreat-reservation/internal/config"     // Internal config loader
	"github.com/iliyamo/retreat-reservation/internal/database"   // MySQL connection pool
	"github.com/iliyamo/retreat-reservation/internal/handler"    // HTTP handlers
	"github.com/iliyamo/retreat-reservation/internal/middleware" // Rate limiting, caching, cooldown
	"github.com/iliyamo/retreat-reservation/internal/queue"      // RabbitMQ notification consumer
	"github.com/iliyamo/retreat-reservation/internal/repository" // Data access layer
	"github.com/iliyamo/retreat-reservation/internal/router"     // Route registration
	queue_publisher "github.com/iliyamo/retreat-reservation/internal/service" // Broker-backed notifier
	"github.com/iliyamo/retreat-reservation/internal/waitqueue"  // Wait-queue engine
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: when unreachable, rate limiting, response
	// caching and the notify cooldown all degrade to pass-through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, caching/ratelimit/cooldown disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	retreats := repository.NewRetreatRepo(db)
	reservations := repository.NewReservationRepo(db)
	store := repository.NewWaitQueueStore(db)

	engine := waitqueue.NewEngine(store, queue_publisher.NewSeatReservedNotifier(), waitqueue.SystemClock{})

	// The consumer drains offer events published by notification cycles
	// and reconnects with backoff when the broker drops.
	go func() {
		if err := queue.StartSeatReservedConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e,
		handler.NewPublicHandler(retreats, engine),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterAdmin(e,
		handler.NewAdminHandler(retreats, store),
		handler.NewWaitQueueHandler(retreats, store, engine),
		cfg.JWTSecret,
		middleware.NotifyCooldown(rdb, cfg.NotifyCooldown))
	router.RegisterMember(e,
		handler.NewReservationHandler(retreats, reservations, engine),
		handler.NewWaitQueueHandler(retreats, store, engine),
		cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}

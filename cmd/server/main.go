/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the parking reservation server. Handles
  configuration, dependency injection, job scheduling, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Initialize structured logging
  3. Open SQLite store
  4. Connect cache (Redis when configured, in-process otherwise)
  5. Build engine, admin service, exporter, and HTTP handler
  6. Start the cron scheduler and HTTP server
  7. Shut down gracefully on SIGINT/SIGTERM

CONFIGURATION:
  Flags override environment variables. Environment can come from a
  .env file in the working directory.

    -port   PORT         HTTP server port (default: 8080)
    -db     DB_PATH      SQLite database path (default: parking.db)
                         Use ":memory:" for in-memory database
    -redis  REDIS_ADDR   Redis address; empty uses in-process cache
    -export EXPORT_DIR   Directory for CSV exports (default: ./exports)
            CACHE_TTL    Lot-view cache TTL as a Go duration (default: 60s)
            REMINDER_SCHEDULE / REPORT_SCHEDULE  Cron specs for the jobs

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections (30s drain timeout)
  2. Stop the cron scheduler, waiting for running jobs
  3. Close cache and database connections
  4. Exit

EXAMPLES:
  # Run with file database and in-process cache
  ./server -db="./data/parking.db"

  # Run against a local Redis
  ./server -redis="localhost:6379"

SEE ALSO:
  - api/server.go: Router configuration
  - jobs/scheduler.go: Recurring jobs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/openlot/parking-engine/api"
	"github.com/openlot/parking-engine/cache"
	"github.com/openlot/parking-engine/jobs"
	"github.com/openlot/parking-engine/parking"
	"github.com/openlot/parking-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "parking.db"), "SQLite database path")
	redisAddr := flag.String("redis", envStr("REDIS_ADDR", ""), "Redis address (empty = in-process cache)")
	exportDir := flag.String("export", envStr("EXPORT_DIR", "./exports"), "Directory for CSV exports")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		sugar.Fatalw("Failed to initialize database", "path", *dbPath, "error", err)
	}
	defer store.Close()

	var lotCache parking.Cache
	if *redisAddr != "" {
		redisCache := cache.NewRedis(*redisAddr, envStr("REDIS_PASSWORD", ""), envInt("REDIS_DB", 0), sugar)
		if err := redisCache.Ping(context.Background()); err != nil {
			sugar.Fatalw("Failed to connect to Redis", "addr", *redisAddr, "error", err)
		}
		defer redisCache.Close()
		lotCache = redisCache
		sugar.Infow("Using Redis cache", "addr", *redisAddr)
	} else {
		lotCache = cache.NewMemory()
		sugar.Infow("Using in-process cache")
	}

	engine := parking.NewEngine(store, lotCache, sugar)
	admin := parking.NewAdmin(store, lotCache, sugar)
	exporter := jobs.NewExporter(store, *exportDir, sugar)

	reporter := jobs.NewReporter(store, jobs.NewLogNotifier(sugar), sugar)
	scheduler, err := jobs.NewScheduler(reporter,
		envStr("REMINDER_SCHEDULE", jobs.DefaultReminderSchedule),
		envStr("REPORT_SCHEDULE", jobs.DefaultReportSchedule),
		sugar)
	if err != nil {
		sugar.Fatalw("Failed to build job scheduler", "error", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(engine, admin, store, lotCache, exporter, sugar)
	if ttl := envDuration("CACHE_TTL", 0); ttl > 0 {
		handler.CacheTTL = ttl
	}
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("Server starting", "addr", fmt.Sprintf("http://localhost:%d", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infow("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		sugar.Fatalw("Server forced to shutdown", "error", err)
	}

	sugar.Infow("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

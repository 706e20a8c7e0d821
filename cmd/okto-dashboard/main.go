package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/blndgs/okto"
	"github.com/blndgs/okto/client"
	"github.com/blndgs/okto/server"
	"github.com/blndgs/okto/store"
)

var (
	version = "dev"

	defaultDebug     = os.Getenv("DEBUG") == "1"
	defaultLogFile   = os.Getenv("LOG_FILE")
	defaultService   = os.Getenv("LOG_SERVICE")
	defaultListen    = getEnv("LISTEN_ADDR", ":8080")
	defaultRedis     = os.Getenv("REDIS_URL")
	defaultMySQL     = os.Getenv("MYSQL_DSN")
	defaultRateLimit = getEnv("BACKEND_RATE_LIMIT", "10")
	defaultTimeout   = getEnv("BACKEND_TIMEOUT", "30s")

	debugPtr     = flag.Bool("debug", defaultDebug, "print debug output")
	logFilePtr   = flag.String("log-file", defaultLogFile, "also write JSON logs to this rotated file")
	servicePtr   = flag.String("log-service", defaultService, "'service' tag to logs")
	listenPtr    = flag.String("listen", defaultListen, "address to listen on")
	envFilePtr   = flag.String("env-file", ".env", "dotenv file with OKTO_* settings")
	redisPtr     = flag.String("redis", defaultRedis, "redis url for sessions; in-memory when empty")
	mysqlPtr     = flag.String("mysql", defaultMySQL, "mysql dsn for the job ledger; in-memory when empty")
	rateLimitPtr = flag.String("backend-rate-limit", defaultRateLimit, "backend requests per second")
	timeoutPtr   = flag.String("backend-timeout", defaultTimeout, "timeout of a single backend request")
)

func main() {
	flag.Parse()

	logger := newLogger(*debugPtr, *logFilePtr, *servicePtr)
	defer func() { _ = logger.Sync() }()
	if !*debugPtr {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting okto-dashboard", zap.String("version", version))

	cfg, err := okto.LoadConfig(*envFilePtr)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid client credentials", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sessions store.SessionStore = store.NewMemorySessionStore()
	if *redisPtr != "" {
		redisClient, err := store.OpenRedis(ctx, *redisPtr)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		sessions = store.NewRedisSessionStore(redisClient, store.DefaultSessionPrefix)
	}

	var jobs store.JobStore = store.NewMemoryJobStore()
	if *mysqlPtr != "" {
		db, err := store.OpenMySQL(*mysqlPtr)
		if err != nil {
			logger.Fatal("Failed to connect to mysql", zap.Error(err))
		}
		if jobs, err = store.NewGormJobStore(db); err != nil {
			logger.Fatal("Failed to migrate job ledger", zap.Error(err))
		}
	}

	rateLimit, err := cast.ToFloat64E(*rateLimitPtr)
	if err != nil || rateLimit <= 0 {
		logger.Fatal("Invalid backend rate limit", zap.String("value", *rateLimitPtr))
	}
	timeout, err := cast.ToDurationE(*timeoutPtr)
	if err != nil {
		logger.Fatal("Invalid backend timeout", zap.Error(err))
	}

	backend := client.New(cfg.BaseURL,
		client.WithHTTPClient(&http.Client{Timeout: timeout}),
		client.WithLogger(logger.Named("backend")),
		client.WithRateLimit(rate.Limit(rateLimit), int(rateLimit)+1),
	)

	srv, err := server.New(cfg, backend, sessions, jobs, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              *listenPtr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	connectionsClosed := make(chan struct{})
	go func() {
		notifier := make(chan os.Signal, 1)
		signal.Notify(notifier, os.Interrupt, syscall.SIGTERM)
		<-notifier
		logger.Info("Shutting down...")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown server", zap.Error(err))
		}
		close(connectionsClosed)
	}()

	logger.Info("Listening", zap.String("addr", *listenPtr), zap.String("backend", backend.BaseURL()))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}
	<-connectionsClosed
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

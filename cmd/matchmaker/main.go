package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/globetalk/matchmaking/internal/api"
	"github.com/globetalk/matchmaking/internal/auth"
	"github.com/globetalk/matchmaking/internal/ban"
	"github.com/globetalk/matchmaking/internal/config"
	"github.com/globetalk/matchmaking/internal/directory"
	"github.com/globetalk/matchmaking/internal/matching"
	"github.com/globetalk/matchmaking/internal/messaging"
	"github.com/globetalk/matchmaking/internal/penpal"
	"github.com/globetalk/matchmaking/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting GlobeTalk matchmaking service...")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// Directory backend.
	var (
		dir matching.Directory
		db  *sql.DB
	)
	switch cfg.Directory.Backend {
	case config.BackendPostgres:
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := directory.Migrate(db); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		dir = directory.NewPostgresStore(db)
	default:
		dir = directory.NewRedisStore(rdb)
	}

	// NATS setup. Events are best-effort, so the service runs without them.
	var (
		natsClient *messaging.NATSClient
		matchPub   matching.Publisher
		penpalPub  penpal.Publisher
	)
	if cfg.NATS.URL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Printf("NATS unavailable, events disabled: %v", err)
		} else {
			matchPub = natsClient
			penpalPub = natsClient
		}
	}

	bans := ban.NewStore(rdb)
	handlers := api.NewHandlers(
		matching.NewService(dir, bans, matchPub),
		penpal.NewLedger(rdb, penpalPub),
		ratelimit.NewLimiter(rdb),
	)
	handlers.AddHealthCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	if db != nil {
		handlers.AddHealthCheck("postgres", db.PingContext)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	srv := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: api.NewRouter(handlers, api.RouterConfig{
			Auth:           verifier.Middleware,
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.Printf("GlobeTalk matchmaking service running")
	log.Printf("  listen_addr: %s", cfg.Server.ListenAddr)
	log.Printf("  redis_addr:  %s", cfg.Redis.Addr)
	log.Printf("  directory:   %s", cfg.Directory.Backend)
	log.Printf("  nats_url:    %s", cfg.NATS.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if natsClient != nil {
		natsClient.Close()
	}
	if db != nil {
		db.Close()
	}
	rdb.Close()
}

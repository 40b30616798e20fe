// Command server runs the registrar: the JSON intake boundary, the registry
// session pool behind the facade, the audit outbox worker, and the expiry
// sweep. Business logic lives in the internal services; main only wires.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	domainshandler "registrar/internal/domains/handler"
	domainsservice "registrar/internal/domains/service"
	domainsstore "registrar/internal/domains/store"
	"registrar/internal/epp"
	"registrar/internal/platform/config"
	"registrar/internal/platform/httpserver"
	"registrar/internal/platform/logger"
	"registrar/internal/platform/redis"
	"registrar/internal/registry"
	requestshandler "registrar/internal/requests/handler"
	requestsservice "registrar/internal/requests/service"
	requestsstore "registrar/internal/requests/store"
	audit "registrar/pkg/platform/audit"
	auditpublisher "registrar/pkg/platform/audit/publisher"
	auditmemory "registrar/pkg/platform/audit/store/memory"
	auditpostgres "registrar/pkg/platform/audit/store/postgres"
	auditworker "registrar/pkg/platform/audit/worker"
	"registrar/pkg/platform/middleware"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("registrar.exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log pslog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence. Without a database URL everything runs in memory, which
	// is enough for local development against a stub registry.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
	}

	var (
		domainStore  domainsstore.Store
		requestStore requestsstore.Store
		auditStore   audit.Store
	)
	if db != nil {
		domainStore = domainsstore.NewPostgres(db)
		requestStore = requestsstore.NewPostgres(db)
		auditStore = auditpostgres.New(db)
	} else {
		log.Warn("registrar.storage.memory_mode")
		domainStore = domainsstore.NewMemory()
		requestStore = requestsstore.NewMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var checkCache *registry.CheckCache
	if redisClient != nil {
		defer redisClient.Close()
		checkCache = registry.NewCheckCache(&registry.RedisCheckStore{Client: redisClient.Client}, cfg.CheckCacheTTL, log)
	}

	// Registry plumbing: session factory, bounded pool, retrying facade.
	sessionCfg, err := sessionConfig(cfg.Registry, log)
	if err != nil {
		return err
	}
	pool := epp.NewPool(epp.PoolConfig{
		MaxSessions:    cfg.Pool.MaxSessions,
		MinIdle:        cfg.Pool.MinIdle,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		IdleTimeout:    cfg.Pool.IdleTimeout,
		SweepInterval:  cfg.Pool.SweepInterval,
		KeepaliveAfter: cfg.Pool.KeepaliveAfter,
		Logger:         log,
	}, func(ctx context.Context) (*epp.Session, error) {
		s := epp.NewSession(sessionCfg)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	})

	facade := registry.New(registry.PoolAdapter{Pool: pool}, registry.Config{
		ClientID:       cfg.Registry.ClientID,
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, checkCache, log)

	publisher := auditpublisher.NewPublisher(auditStore, auditpublisher.WithAsyncBuffer(256))
	defer publisher.Close()

	domains := domainsservice.New(domainStore, facade, publisher, cfg.RedemptionWindow, log)
	requests := requestsservice.New(requestStore, facade, domains, log,
		requestsservice.WithAuditEmitter(publisher))

	router := newRouter(log, db, redisClient, pool, domains, requests)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("registrar.http.listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("registrar.http.shutdown", "error", err)
		}
		if err := pool.Drain(shutdownCtx); err != nil {
			log.Warn("registrar.pool.drain", "error", err)
		}
		return nil
	})

	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		worker, err := auditworker.New(db, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.PollInterval, log)
		if err != nil {
			return fmt.Errorf("start audit worker: %w", err)
		}
		defer worker.Close()
		g.Go(func() error { return ignoreCanceled(worker.Run(gctx)) })
	}

	g.Go(func() error {
		return ignoreCanceled(domains.StartExpirySweep(gctx, cfg.ExpirySweepInterval))
	})

	return g.Wait()
}

func sessionConfig(cfg config.Registry, log pslog.Logger) (epp.SessionConfig, error) {
	creds := epp.Credentials{
		ClientID: cfg.ClientID,
		Password: cfg.Password,
	}
	if cfg.CertBundlePath != "" {
		bundle, err := epp.LoadClientBundle(cfg.CertBundlePath)
		if err != nil {
			return epp.SessionConfig{}, fmt.Errorf("load client cert bundle: %w", err)
		}
		creds.Bundle = bundle
	}
	return epp.SessionConfig{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Credentials:     creds,
		ConnectTimeout:  cfg.ConnectTimeout,
		ResponseTimeout: cfg.ResponseTimeout,
		Logger:          log,
	}, nil
}

func newRouter(
	log pslog.Logger,
	db *sql.DB,
	redisClient *redis.Client,
	pool *epp.Pool,
	domains *domainsservice.Service,
	requests *requestsservice.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Actor)
	r.Use(middleware.AccessLog(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", readyz(db, redisClient, pool))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	requestshandler.New(requests, log).Register(r)
	domainshandler.New(domains, log).Register(r)
	return r
}

// readyz reports whether every dependency this process needs is reachable.
// The pool counts as ready while it still has capacity to hand out sessions.
func readyz(db *sql.DB, redisClient *redis.Client, pool *epp.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if _, _, capacity := pool.Stats(); capacity == 0 {
			http.Error(w, "session pool closed", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

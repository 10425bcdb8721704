package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"veridoc/internal/alerts"
	"veridoc/internal/contentstore"
	"veridoc/internal/grants"
	grantservice "veridoc/internal/grants/service"
	grantstore "veridoc/internal/grants/store"
	jwttoken "veridoc/internal/jwt_token"
	"veridoc/internal/platform/config"
	"veridoc/internal/platform/httpserver"
	"veridoc/internal/platform/logger"
	"veridoc/internal/platform/metrics"
	platformredis "veridoc/internal/platform/redis"
	"veridoc/internal/registry"
	registryservice "veridoc/internal/registry/service"
	registrystore "veridoc/internal/registry/store"
	"veridoc/internal/retrieval"
	httptransport "veridoc/internal/transport/http"
	"veridoc/internal/vault"
	"veridoc/internal/verification"
	"veridoc/pkg/platform/audit"
	auditkafka "veridoc/pkg/platform/audit/kafka"
	auditmem "veridoc/pkg/platform/audit/store/memory"
	auditpg "veridoc/pkg/platform/audit/store/postgres"
	auditworker "veridoc/pkg/platform/audit/worker"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var db *sql.DB
	if cfg.DB.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DB.DSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// audit pipeline: non-blocking channel into a store worker, with an
	// optional Kafka fanout for retention
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpg.New(db)
	} else {
		auditStore = auditmem.NewInMemoryStore()
	}
	auditInbox := make(chan audit.Event, 1024)
	auditPublisher := audit.Publisher(auditworker.NewChannelPublisher(auditInbox, log))
	worker := auditworker.NewWorker(auditStore, auditInbox, log)

	var kafkaPublisher *auditkafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err = auditkafka.NewPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, auditkafka.WithLogger(log))
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		auditPublisher = fanout{auditPublisher, kafkaPublisher}
	}

	var registryStore registry.Store
	if db != nil {
		registryStore = registrystore.NewPostgresStore(db)
	} else {
		registryStore = registrystore.NewInMemoryStore()
	}

	var grantStore grants.Store
	switch {
	case redisClient != nil:
		grantStore = grantstore.NewRedisStore(redisClient.Client)
	case db != nil:
		grantStore = grantstore.NewPostgresStore(db)
	default:
		grantStore = grantstore.NewInMemoryStore()
	}

	var content contentstore.Store
	if redisClient != nil {
		content = contentstore.NewRedisStore(redisClient.Client)
	} else {
		content = contentstore.NewInMemoryStore()
	}

	registryOpts := []registryservice.Option{
		registryservice.WithLogger(log),
		registryservice.WithAuditPublisher(auditPublisher),
		registryservice.WithMetrics(m),
	}
	if cfg.AMQP.URL != "" {
		alertPublisher, err := alerts.NewRabbitPublisher(cfg.AMQP.URL)
		if err != nil {
			log.Error("connect rabbitmq", "error", err)
			os.Exit(1)
		}
		defer alertPublisher.Close()
		registryOpts = append(registryOpts, registryservice.WithAlertPublisher(alertPublisher))
	}

	registrySvc, err := registryservice.New(registryStore, registryOpts...)
	if err != nil {
		log.Error("build registry service", "error", err)
		os.Exit(1)
	}

	grantSvc, err := grantservice.New(grantStore,
		grantservice.WithLogger(log),
		grantservice.WithAuditPublisher(auditPublisher),
		grantservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("build grant service", "error", err)
		os.Exit(1)
	}

	v := vault.New()

	retrievalSvc, err := retrieval.New(
		content,
		retrieval.NewRegistryOwnerDirectory(registryStore),
		retrieval.NewClaimsRoleDirectory(),
		grantSvc,
		v,
		retrieval.WithLogger(log),
		retrieval.WithAuditPublisher(auditPublisher),
		retrieval.WithMetrics(m),
	)
	if err != nil {
		log.Error("build retrieval service", "error", err)
		os.Exit(1)
	}

	verifier, err := verification.New(
		verification.NewRegistryStatusDirectory(registryStore),
		grantSvc,
		verification.WithLogger(log),
		verification.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		log.Error("build verification facade", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "veridoc", "veridoc-api")

	var health []httptransport.HealthChecker
	if redisClient != nil {
		health = append(health, redisClient)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Registry:     registrySvc,
		Grants:       grantSvc,
		Verifier:     verifier,
		Documents:    httptransport.NewDocumentsHandler(v, content, retrievalSvc, log),
		JWTValidator: jwttoken.NewMiddlewareAdapter(jwtService),
		Logger:       log,
		Health:       health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting veridoc", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// fanout emits each event to every publisher; the first error wins but all
// publishers see the event.
type fanout []audit.Publisher

func (f fanout) Emit(ctx context.Context, event audit.Event) error {
	var firstErr error
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

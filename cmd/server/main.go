package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"

	authHandler "certwallet/internal/auth/handler"
	"certwallet/internal/auth/revocation"
	"certwallet/internal/canonical"
	"certwallet/internal/credential/fetcher"
	credentialHandler "certwallet/internal/credential/handler"
	credentialMetrics "certwallet/internal/credential/metrics"
	"certwallet/internal/credential/resolver"
	credentialService "certwallet/internal/credential/service"
	credentialStore "certwallet/internal/credential/store"
	"certwallet/internal/holder"
	issuerClient "certwallet/internal/issuer/client"
	issuerHandler "certwallet/internal/issuer/handler"
	issuerMetrics "certwallet/internal/issuer/metrics"
	issuerService "certwallet/internal/issuer/service"
	issuerStore "certwallet/internal/issuer/store"
	jwttoken "certwallet/internal/jwt_token"
	"certwallet/internal/platform/config"
	"certwallet/internal/platform/httpserver"
	platformkafka "certwallet/internal/platform/kafka"
	"certwallet/internal/platform/kafka/consumer"
	"certwallet/internal/platform/logger"
	"certwallet/internal/platform/metrics"
	"certwallet/internal/platform/postgres"
	platformredis "certwallet/internal/platform/redis"
	"certwallet/internal/policy"
	"certwallet/internal/ratelimit"
	httptransport "certwallet/internal/transport/http"
	"certwallet/internal/verification"
	"certwallet/internal/verification/ledger"
	audit "certwallet/pkg/platform/audit"
	auditconsumer "certwallet/pkg/platform/audit/consumer"
	auditpublisher "certwallet/pkg/platform/audit/publisher"
	auditkafka "certwallet/pkg/platform/audit/store/kafka"
	auditmemory "certwallet/pkg/platform/audit/store/memory"
	auditpostgres "certwallet/pkg/platform/audit/store/postgres"
	authmw "certwallet/pkg/platform/middleware/auth"
)

const (
	connectTimeout    = 30 * time.Second
	auditBuffer       = 256
	auditConsumerName = "certwallet-audit-materializer"
	userAgent         = "certwallet/1.0"
)

type credentialRepository interface {
	credentialService.Store
	resolver.CredentialStore
	issuerService.CredentialStore
}

type issuerRepository interface {
	issuerService.Store
	resolver.TrustStore
}

type revocationList interface {
	authHandler.Revoker
	authmw.TokenRevocationChecker
}

// infra holds the backing services chosen by configuration and what must be
// released on shutdown.
type infra struct {
	db          *sql.DB
	credentials credentialRepository
	issuers     issuerRepository
	revocations revocationList
	checks      []httpserver.Check
	closers     []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("certwallet stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	publisher, err := openAudit(ctx, cfg, log, deps)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Verification.FetchTimeout}
	issuers := issuerClient.New(httpClient, userAgent)
	ledgerClient, err := ledger.New(cfg.Verification.LedgerGatewayURL, httpClient)
	if err != nil {
		return err
	}
	var canonicalizer canonical.Canonicalizer = canonical.SortedJSON{}
	if cfg.Verification.JSONLDCanonical {
		canonicalizer = canonical.NewJSONLD(httpClient)
	}
	importPolicy, err := policy.LoadImportPolicy(ctx, cfg.ImportPolicyFile)
	if err != nil {
		return err
	}
	identity, err := holder.New(cfg.Holder)
	if err != nil {
		return err
	}

	credMetrics := credentialMetrics.New()
	engine := verification.New(ledgerClient, issuers,
		verification.WithCanonicalizer(canonicalizer),
		verification.WithCheckTimeout(cfg.Verification.CheckTimeout),
		verification.WithTracer(otel.Tracer("certwallet/verification")),
		verification.WithStepObserver(credMetrics),
		verification.WithLogger(log),
	)
	res := resolver.New(deps.credentials, deps.issuers, issuers, importPolicy, resolver.WithLogger(log))

	credentials := credentialService.New(deps.credentials, res, engine,
		fetcher.New(httpClient, cfg.Verification.FetchTimeout),
		credentialService.WithLogger(log),
		credentialService.WithAuditPublisher(publisher),
		credentialService.WithMetrics(credMetrics),
		credentialService.WithAnchorPreviewer(ledgerClient),
	)
	trust := issuerService.New(deps.issuers, deps.credentials, issuers, identity,
		issuerService.WithLogger(log),
		issuerService.WithAuditPublisher(publisher),
		issuerService.WithMetrics(issuerMetrics.New()),
		issuerService.WithProfileFetcher(issuers),
	)

	limiter := ratelimit.NewMiddleware(ratelimit.NewInMemoryWindow(nil),
		ratelimit.Limit{Requests: cfg.RateLimit.ReadsPerWindow, Window: cfg.RateLimit.Window},
		ratelimit.Limit{Requests: cfg.RateLimit.WritesPerWindow, Window: cfg.RateLimit.Window},
		log,
	)
	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:      log,
		Metrics:     metrics.New(),
		Validator:   jwttoken.NewJWTServiceAdapter(jwtService),
		Revocations: deps.revocations,
		RateLimit:   limiter.Handler,
		Health:      httpserver.HealthHandler(deps.checks...),
		Features: []httptransport.Registrar{
			credentialHandler.New(credentials, log),
			issuerHandler.New(trust, log),
			authHandler.New(deps.revocations, log),
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting certwallet",
			"addr", cfg.Addr,
			"store", cfg.Store,
			"holder", identity.Address(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}
	switch cfg.Store {
	case config.BackendMemory:
		deps.credentials = credentialStore.NewInMemoryStore()
		deps.issuers = issuerStore.NewInMemoryStore()
		deps.revocations = revocation.NewInMemoryList(nil)

	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		db, err := postgres.Open(ctx, cfg.DatabaseURL, connectTimeout, log)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			deps.close()
			return nil, err
		}
		deps.db = db
		deps.credentials = credentialStore.NewPostgres(db)
		deps.issuers = issuerStore.NewPostgres(db)
		deps.revocations = revocation.NewPostgresList(db, nil)
		deps.checks = append(deps.checks, httpserver.Check{Name: "postgres", Probe: db.PingContext})

	case config.BackendRedis:
		rc, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		if rc == nil {
			return nil, errors.New("REDIS_URL is required for the redis store")
		}
		deps.closers = append(deps.closers, func() { _ = rc.Close() })
		deps.credentials = credentialStore.NewRedis(rc.Client)
		deps.issuers = issuerStore.NewRedis(rc.Client)
		deps.revocations = revocation.NewRedisList(rc.Client)
		deps.checks = append(deps.checks, httpserver.Check{Name: "redis", Probe: rc.Health})

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store)
	}
	return deps, nil
}

// openAudit picks the audit sink. With brokers configured events go to the
// audit topic and a consumer materializes them into the view store;
// otherwise the publisher appends to the view store from a buffered worker.
func openAudit(ctx context.Context, cfg config.Server, log *slog.Logger, deps *infra) (*auditpublisher.Publisher, error) {
	var view audit.Store = auditmemory.NewInMemoryStore()
	if deps.db != nil {
		view = auditpostgres.New(deps.db)
	}

	if len(cfg.Kafka.Brokers) == 0 {
		p := auditpublisher.NewPublisher(view,
			auditpublisher.WithAsyncBuffer(auditBuffer),
			auditpublisher.WithLogger(log),
		)
		deps.closers = append(deps.closers, p.Close)
		return p, nil
	}

	producer, err := platformkafka.NewClient(ctx, cfg.Kafka.Brokers, connectTimeout, log)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, producer.Close)
	if err := platformkafka.EnsureTopic(ctx, producer, cfg.Kafka.Topic, 3, 1); err != nil {
		return nil, err
	}
	deps.checks = append(deps.checks, httpserver.Check{Name: "kafka", Probe: producer.Ping})

	reader, err := platformkafka.NewClient(ctx, cfg.Kafka.Brokers, connectTimeout, log,
		kgo.ConsumerGroup(auditConsumerName),
		kgo.ConsumeTopics(cfg.Kafka.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	consumerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.New(reader, auditconsumer.NewMaterializer(view, log), log).Run(consumerCtx); err != nil {
			log.Error("audit consumer stopped", "error", err)
		}
	}()
	deps.closers = append(deps.closers, func() {
		cancel()
		reader.Close()
		<-done
	})

	// Produce synchronously; the broker is the buffer.
	return auditpublisher.NewPublisher(auditkafka.New(producer, cfg.Kafka.Topic, view),
		auditpublisher.WithLogger(log),
	), nil
}

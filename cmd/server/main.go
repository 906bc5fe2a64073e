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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	contributionhandler "crummey/internal/contribution/handler"
	contributionservice "crummey/internal/contribution/service"
	contributionstore "crummey/internal/contribution/store"
	dashboardhandler "crummey/internal/dashboard/handler"
	dashboardservice "crummey/internal/dashboard/service"
	httpapi "crummey/internal/http"
	jwttoken "crummey/internal/jwt_token"
	"crummey/internal/notice/dispatch"
	noticehandler "crummey/internal/notice/handler"
	noticemetrics "crummey/internal/notice/metrics"
	"crummey/internal/notice/reminder"
	noticeservice "crummey/internal/notice/service"
	noticestore "crummey/internal/notice/store"
	"crummey/internal/platform/config"
	"crummey/internal/platform/database"
	"crummey/internal/platform/httpserver"
	"crummey/internal/platform/kafka"
	"crummey/internal/platform/logger"
	"crummey/internal/platform/metrics"
	"crummey/internal/platform/redis"
	"crummey/internal/ratelimit"
	trusthandler "crummey/internal/trust/handler"
	trustservice "crummey/internal/trust/service"
	beneficiarystore "crummey/internal/trust/store/beneficiary"
	truststore "crummey/internal/trust/store/trust"
	"crummey/pkg/platform/audit"
	auditkafka "crummey/pkg/platform/audit/publisher/kafka"
	auditmemory "crummey/pkg/platform/audit/store/memory"
	auditpostgres "crummey/pkg/platform/audit/store/postgres"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

type trustStore interface {
	trustservice.TrustStore
	dashboardservice.TrustStore
}

type beneficiaryStore interface {
	trustservice.BeneficiaryStore
	contributionservice.BeneficiaryReader
	dashboardservice.BeneficiaryCounter
}

type noticeStore interface {
	noticeservice.Store
	contributionservice.NoticeWriter
	dashboardservice.NoticeStore
}

// stores is the ledger: Postgres when DATABASE_URL is set, memory otherwise.
type stores struct {
	trusts        trustStore
	beneficiaries beneficiaryStore
	contributions contributionservice.Store
	notices       noticeStore
	audit         audit.Store
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return &stores{
			trusts:        truststore.NewInMemory(),
			beneficiaries: beneficiarystore.NewInMemory(),
			contributions: contributionstore.NewInMemory(),
			notices:       noticestore.NewInMemory(),
			audit:         auditmemory.NewInMemoryStore(),
		}, nil, nil
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &stores{
		trusts:        truststore.NewPostgres(db),
		beneficiaries: beneficiarystore.NewPostgres(db),
		contributions: contributionstore.NewPostgres(db),
		notices:       noticestore.NewPostgres(db),
		audit:         auditpostgres.New(db),
	}, db, nil
}

func newLimiter(ctx context.Context, cfg config.Config, log *slog.Logger) (ratelimit.Limiter, *redis.Client, error) {
	policy := ratelimit.Policy{Limit: cfg.AckRateLimit, Window: cfg.AckRateWindow}
	memory := ratelimit.NewMemoryLimiter(policy)

	client, err := redis.New(ctx, cfg.Redis())
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, rate limits are per instance")
		return memory, nil, nil
	}
	return ratelimit.NewFallbackLimiter(ratelimit.NewRedisLimiter(client, policy), memory, log), client, nil
}

func newAuditRecorder(ctx context.Context, cfg config.Config, store audit.Store, log *slog.Logger) (*audit.Recorder, *kgo.Client, error) {
	opts := []audit.Option{audit.WithLogger(log), audit.WithAsyncBuffer(cfg.AuditBuffer)}

	client, err := kafka.New(ctx, cfg.KafkaBrokers, "crummey")
	if err != nil {
		return nil, nil, err
	}
	if client != nil {
		if err := auditkafka.EnsureTopic(ctx, client, cfg.AuditTopic, 3, 1); err != nil {
			client.Close()
			return nil, nil, err
		}
		opts = append(opts, audit.WithStream(auditkafka.NewPublisher(client, cfg.AuditTopic)))
	} else {
		log.Info("KAFKA_BROKERS not set, audit stream disabled")
	}
	return audit.NewRecorder(store, opts...), client, nil
}

func newDispatcher(cfg config.Config, log *slog.Logger) (dispatch.Dispatcher, error) {
	if cfg.SMTPURL == "" {
		log.Warn("SMTP_URL not set, notices are logged instead of emailed")
		return dispatch.NewLogDispatcher(log), nil
	}
	return dispatch.NewSMTPDispatcher(cfg.SMTPURL, cfg.DispatchTimeout)
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	limiter, redisClient, err := newLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	recorder, kafkaClient, err := newAuditRecorder(ctx, cfg, st.audit, log)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
	}
	defer recorder.Close()

	dispatcher, err := newDispatcher(cfg, log)
	if err != nil {
		return err
	}
	renderer, err := dispatch.NewRenderer(cfg.AppURL)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(registry)
	noticeMetrics := noticemetrics.New(registry)

	trusts := trustservice.New(st.trusts, st.beneficiaries,
		trustservice.WithLogger(log),
		trustservice.WithAuditRecorder(recorder),
	)
	contributions := contributionservice.New(st.contributions, st.trusts, st.beneficiaries, st.notices,
		contributionservice.WithLogger(log),
		contributionservice.WithAuditRecorder(recorder),
		contributionservice.WithMetrics(noticeMetrics),
	)
	notices := noticeservice.New(st.notices, noticeservice.Ledger{
		Trusts:        st.trusts,
		Beneficiaries: st.beneficiaries,
		Contributions: st.contributions,
	}, dispatcher, renderer,
		noticeservice.WithLogger(log),
		noticeservice.WithAuditRecorder(recorder),
		noticeservice.WithMetrics(noticeMetrics),
		noticeservice.WithDispatchTimeout(cfg.DispatchTimeout),
		noticeservice.WithSendConcurrency(cfg.SendConcurrency),
		noticeservice.WithReminderWindow(cfg.ReminderWindowDays),
	)

	dashboard := dashboardservice.New(st.trusts, st.beneficiaries, st.notices,
		dashboardservice.WithLogger(log),
	)

	if cfg.WebhookSecretHash == "" {
		log.Warn("WEBHOOK_SECRET_HASH not set, delivery webhook rejects all callbacks")
	}

	checks := map[string]httpapi.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}
	if kafkaClient != nil {
		checks["kafka"] = kafkaClient.Ping
	}

	jwt := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger: log,
		Auth:   jwttoken.NewJWTServiceAdapter(jwt),
		Owner: []httpapi.OwnerRoutes{
			trusthandler.New(trusts, log),
			contributionhandler.New(contributions, log),
			dashboardhandler.New(dashboard, log),
		},
		Notices: noticehandler.New(notices, log, noticehandler.WithWebhookSecretHash(cfg.WebhookSecretHash)),
		PublicLimit: ratelimit.New(limiter, log,
			ratelimit.WithMetrics(ratelimit.NewMetrics(registry)),
		).PerIP,
		Instrument:     httpMetrics.Instrument,
		Metrics:        metrics.Handler(registry),
		HealthChecks:   checks,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	scheduler := reminder.NewScheduler(notices, log, cfg.ReminderSchedule, cfg.DispatchTimeout*10)
	if err := scheduler.Start(); err != nil {
		return err
	}

	srv := httpserver.New(cfg.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting crummey", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		<-scheduler.Stop().Done()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// The recorder is closed by a deferred call, so the reminder run must
	// finish first. Each run is bounded by its own timeout.
	stopped := scheduler.Stop()
	shutdownErr := srv.Shutdown(shutdownCtx)
	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
		log.Warn("waiting for reminder run to finish")
		<-stopped.Done()
	}
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}
	return nil
}

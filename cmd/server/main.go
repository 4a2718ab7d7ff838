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

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"openletter/internal/admin"
	"openletter/internal/audit"
	"openletter/internal/dump"
	dumphandler "openletter/internal/dump/handler"
	dumpmetrics "openletter/internal/dump/metrics"
	httpapi "openletter/internal/http"
	"openletter/internal/nation"
	nationhandler "openletter/internal/nation/handler"
	nationmetrics "openletter/internal/nation/metrics"
	nationStore "openletter/internal/nation/store"
	"openletter/internal/nsapi"
	"openletter/internal/platform/config"
	"openletter/internal/platform/httpserver"
	"openletter/internal/platform/logger"
	"openletter/internal/platform/metrics"
	"openletter/internal/platform/migrations"
	"openletter/internal/platform/redis"
	"openletter/internal/ratelimit"
	ratelimitmetrics "openletter/internal/ratelimit/metrics"
	sighandler "openletter/internal/signature/handler"
	"openletter/internal/signature/service"
	sigStore "openletter/internal/signature/store"
	"openletter/internal/throttle"
	throttlemetrics "openletter/internal/throttle/metrics"
)

// main wires dependencies and runs the HTTP server, the ingestion scheduler
// and the audit worker until a signal arrives.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "openletter:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Audit trail: log and Postgres always, Kafka when brokers are configured.
	auditStore := audit.NewPostgresSink(db)
	sinks := audit.MultiSink{audit.NewLogSink(log), auditStore}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		if err := kafkaSink.Ping(ctx); err != nil {
			log.WarnContext(ctx, "kafka unreachable at startup, audit writes to it will time out until it recovers", "error", err)
		}
		sinks = append(sinks, kafkaSink)
	}
	publisher := audit.NewPublisher(1024, log)
	auditWorker := audit.NewWorker(sinks, publisher.Inbox(), log)

	// Outbound API: one throttle shared by every call to the game.
	signer, err := nsapi.NewTokenSigner(cfg.NationStates.SigningSecret)
	if err != nil {
		return err
	}
	th := throttle.New(cfg.NationStates.Interval,
		throttle.WithLogger(log),
		throttle.WithMetrics(throttlemetrics.New(reg)),
	)
	apiClient, err := nsapi.New(cfg.NationStates.UserAgent, th, signer,
		nsapi.WithBaseURL(cfg.NationStates.BaseURL),
		nsapi.WithHTTPClient(&http.Client{Timeout: cfg.NationStates.Timeout}),
		nsapi.WithLogger(log),
	)
	if err != nil {
		return err
	}

	nations := nationStore.NewPostgres(db)
	policy, err := nation.ParseMissPolicy(cfg.NationStates.MissPolicy)
	if err != nil {
		return err
	}
	nationOpts := []nation.Option{
		nation.WithMetrics(nationmetrics.New(reg)),
		nation.WithLogger(log),
	}
	if policy == nation.MissPolicyLive {
		nationOpts = append(nationOpts, nation.WithLiveFallback(apiClient))
	}
	nationSvc := nation.NewService(nations, nationOpts...)

	signatures := service.New(sigStore.NewPostgres(db), apiClient, nationSvc, publisher, log)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Ingestion: Redis lock when configured so only one replica runs a dump.
	pipelineOpts := []dump.Option{
		dump.WithMetrics(dumpmetrics.New(reg)),
		dump.WithLogger(log),
	}
	if redisClient != nil {
		pipelineOpts = append(pipelineOpts, dump.WithLocker(dump.NewRedisLock(redisClient.Client, dump.LockKey)))
	}

	// Per-client limits: shared through Redis when available.
	var limitStore ratelimit.Store
	var localLimits *ratelimit.InMemoryStore
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
	} else {
		localLimits = ratelimit.NewInMemory()
		limitStore = localLimits
	}
	limiter := ratelimit.New(limitStore, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
	)
	downloader := dump.NewDownloader(&http.Client{}, cfg.Ingest.DumpURL, cfg.NationStates.UserAgent, cfg.Ingest.TempDir)
	pipeline := dump.NewPipeline(nations, downloader, dump.Config{
		BatchSize:  cfg.Ingest.BatchSize,
		QueueDepth: cfg.Ingest.QueueDepth,
		Timeout:    cfg.Ingest.Timeout,
		LockTTL:    cfg.Ingest.LockTTL,
	}, pipelineOpts...)
	if n, err := pipeline.RemoveStaleFiles(); err != nil {
		log.WarnContext(ctx, "failed to remove stale dump files", "error", err)
	} else if n > 0 {
		log.InfoContext(ctx, "removed stale dump files", "count", n)
	}
	scheduler := dump.NewScheduler(pipeline, cfg.Ingest.Interval, cfg.Ingest.RunOnStart, log)

	deps := httpapi.Deps{
		Logger:      log,
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Database:    db,
		RateLimit:   limiter,
		SignPolicy:  ratelimit.Policy{Name: "sign", Limit: cfg.RateLimit.SignLimit, Window: cfg.RateLimit.Window},
		LoginPolicy: ratelimit.Policy{Name: "login", Limit: cfg.RateLimit.LoginLimit, Window: cfg.RateLimit.Window},
		Signatures:  sighandler.New(signatures, log),
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	if cfg.AdminEnabled() {
		creds, err := admin.NewCredentials(cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.PasswordHash)
		if err != nil {
			return fmt.Errorf("admin credentials: %w", err)
		}
		sessions, err := admin.NewSessions(cfg.Admin.SessionSecret, cfg.Admin.SessionTTL)
		if err != nil {
			return err
		}
		deps.Admin = admin.NewHandler(creds, sessions, publisher, admin.CookieConfig{
			Name:   cfg.Admin.CookieName,
			Secure: cfg.Admin.CookieSecure,
		}, log)
		deps.Sessions = sessions
		deps.Ingest = dumphandler.New(pipeline, nations, publisher, log)
		deps.Audit = audit.NewHandler(auditStore, log)
		deps.Nations = nationhandler.New(nationSvc, publisher, log)
	} else {
		log.WarnContext(ctx, "admin credentials not configured, admin routes disabled")
	}

	srv := httpserver.New(cfg.Server.Addr, httpapi.NewRouter(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting openletter", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCanceled(scheduler.Start(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return pipeline.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCanceled(auditWorker.Run(gctx))
	})
	if localLimits != nil {
		g.Go(func() error {
			return ignoreCanceled(localLimits.StartSweeper(gctx, cfg.RateLimit.Window))
		})
	}

	err = g.Wait()
	log.Info("openletter stopped", slog.Any("error", err))
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

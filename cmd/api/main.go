package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-automation/internal/analysis"
	"call-automation/internal/audit"
	"call-automation/internal/auth"
	"call-automation/internal/calls"
	"call-automation/internal/config"
	"call-automation/internal/httpapi"
	"call-automation/internal/inbound"
	"call-automation/internal/jobs"
	"call-automation/internal/lock"
	"call-automation/internal/reporting"
	"call-automation/internal/store"
	"call-automation/internal/telephony"
	"call-automation/pkg/logger"
	"call-automation/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(rootCtx, db, log); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	var (
		locker lock.Locker = lock.NewMemory()
		rdb    *redis.Client
	)
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, "call-automation:")
	} else {
		log.Warn("redis not configured, pipeline locks are process-local")
	}

	gateway := newGateway(cfg, log)

	analyzer, err := analysis.NewOpenAIAnalyzer(cfg.OpenAI, log)
	if err != nil {
		log.Error("analysis init failed", "err", err)
		os.Exit(1)
	}

	queue := jobs.NewQueue(log, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	callRepo := calls.NewPostgresRepo(db)
	callSvc := calls.NewService(callRepo, gateway, analyzer, calls.Options{
		Jobs:      queue,
		Locker:    locker,
		Audit:     auditSvc,
		Logger:    log,
		StepDelay: cfg.Pipeline.StepDelay,
	})

	sweeper, err := calls.NewSweeper(callSvc, cfg.Pipeline.SweepSchedule, cfg.Pipeline.StaleAfter, log)
	if err != nil {
		log.Error("sweeper init failed", "err", err)
		os.Exit(1)
	}
	sweeper.Start()

	h := httpapi.Handlers{
		Auth:      auth.NewAuthenticator(tokens, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword),
		Calls:     callSvc,
		Audit:     auditSvc,
		Reporting: reporting.NewService(callRepo),
		Inbound:   inbound.NewService(inbound.NewPostgresRepo(db), cfg.Voice),
		Ready:     readiness(db, rdb),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz"))
	registerRoutes(r, h, auth.RequireAccessToken(tokens))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "telephony", gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("sweeper shutdown failed", "err", err)
	}
	// In-flight pipeline steps finish before the DB closes.
	if err := queue.Shutdown(shutdownCtx); err != nil {
		log.Error("job queue shutdown failed", "err", err)
	}
}

func newGateway(cfg config.Config, log *slog.Logger) telephony.Gateway {
	creds := telephony.ScenarioCredentials{
		OpenAIAPIKey:      cfg.OpenAI.APIKey,
		ElevenLabsAPIKey:  cfg.Voice.ElevenLabsAPIKey,
		ElevenLabsAgentID: cfg.Voice.ElevenLabsAgentID,
		YandexAPIKey:      cfg.Voice.YandexAPIKey,
		YandexFolderID:    cfg.Voice.YandexFolderID,
	}
	gw, err := telephony.NewVoximplantGateway(cfg.Voximplant, creds, log)
	if err != nil {
		log.Warn("telephony disabled, outbound calls will not be placed", "err", err)
		return telephony.NoopGateway{}
	}
	return gw
}

func readiness(db *sql.DB, rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			return err
		}
		if rdb == nil {
			return nil
		}
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(pctx).Err()
	}
}

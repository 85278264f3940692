package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fox-gonic/fox"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rhq-project/rhq-sub002/internal/api"
	"github.com/rhq-project/rhq-sub002/internal/config"
	"github.com/rhq-project/rhq-sub002/internal/database"
	"github.com/rhq-project/rhq-sub002/internal/measurement/changefeed"
	"github.com/rhq-project/rhq-sub002/internal/measurement/enforcer"
	"github.com/rhq-project/rhq-sub002/internal/measurement/metrics"
	"github.com/rhq-project/rhq-sub002/internal/measurement/profile"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/rhq-project/rhq-sub002/internal/measurement/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// load config first
	log.Info().Msg("Starting schedsync api server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLogLevel(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.GetDSN(), database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.ParseDuration(cfg.Database.ConnMaxLifetime, 30*time.Minute),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RHQ database")
	}
	defer db.Close()

	pg := store.NewPgStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("change log schema init failed; changes will not be persisted")
	}

	// optional redis change feed
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable; change feed disabled")
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	feed := changefeed.NewRedisFeed(rdb, cfg.Changefeed.MaxEntries, config.ParseDuration(cfg.Changefeed.TTL, changefeed.DefaultTTL))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	resolver := schedule.NewResolver(pg, pg, schedule.MultiRecorder{pg, feed, collector})
	applier := collector.Instrument(resolver)

	// periodic enforcement of profiles
	var enf *enforcer.Enforcer
	if cfg.Enforcer.ProfilesFile != "" {
		profiles, err := profile.Load(cfg.Enforcer.ProfilesFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load schedule profiles")
		}
		enf = enforcer.New(applier, profiles, config.ParseDuration(cfg.Enforcer.RunTimeout, 2*time.Minute))
		if err := enf.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start schedule enforcer")
		}
		if cfg.Enforcer.RunOnStart {
			go enf.RunOnce(ctx)
		}
	}

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := fox.New()
	deps := api.Deps{
		Query:   pg,
		Applier: applier,
		Changes: []api.NamedLister{
			{Name: "redis", Lister: feed},
			{Name: "postgres", Lister: pg},
		},
		Health:         db.Ping,
		MetricsPath:    cfg.Metrics.Path,
		RequestTimeout: config.ParseDuration(cfg.Server.RequestTimeout, time.Minute),
	}
	if cfg.Metrics.Enabled {
		deps.Gatherer = registry
	}
	if _, err := api.NewApi(router, deps); err != nil {
		log.Fatal().Err(err).Msg("bind schedsync api failed.")
	}

	srv := &http.Server{Addr: cfg.Server.BindAddr, Handler: router}
	go func() {
		log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("start schedsync api server failed.")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ParseDuration(cfg.Server.ShutdownTimeout, 15*time.Second))
	defer cancel()
	if enf != nil {
		enf.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("schedsync api server exit...")
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/cache"
	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/config"
	"github.com/friendsincode/grimnir_playout/internal/db"
	"github.com/friendsincode/grimnir_playout/internal/eventbus"
	"github.com/friendsincode/grimnir_playout/internal/integrity"
	"github.com/friendsincode/grimnir_playout/internal/leadership"
	"github.com/friendsincode/grimnir_playout/internal/locking"
	"github.com/friendsincode/grimnir_playout/internal/logbuffer"
	"github.com/friendsincode/grimnir_playout/internal/playout"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
	"github.com/friendsincode/grimnir_playout/internal/scheduler"
	schedulerstate "github.com/friendsincode/grimnir_playout/internal/scheduler/state"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
	"github.com/friendsincode/grimnir_playout/internal/webhooks"
)

// Server bundles the operations HTTP surface and the rolling scheduler.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error
	instanceID string

	db                   *gorm.DB
	cache                *cache.Cache
	redis                *redis.Client
	bus                  eventbus.Bus
	store                *playout.Store
	exporter             *schedule.ExportService
	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler
	webhooks             *webhooks.Service
	integrity            *integrity.Service
	logs                 *logbuffer.Buffer

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New connects every dependency, migrates the database and starts the
// scheduler. The HTTP server is returned unstarted.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	srv := &Server{
		cfg:        cfg,
		logger:     logger,
		router:     newRouter(),
		instanceID: instanceID,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           otelhttp.NewHandler(srv.router, "grimnir-playout-ops"),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func newRouter() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))
	return router
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// NewPlayoutBuilder creates a builder configured from cfg.
func NewPlayoutBuilder(cfg *config.Config, source collection.Source, logger zerolog.Logger) *playout.Builder {
	opts := playout.DefaultOptions()
	opts.DaysToBuild = cfg.DaysToBuild
	opts.History = cfg.History
	opts.SkipMissingItems = cfg.SkipMissingItems
	if cfg.Location != nil {
		opts.Location = cfg.Location
	}
	return playout.NewBuilder(source, shuffle.NewSeedGenerator(), opts, logger)
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	cacheCfg.CollectionItemsTTL = s.cfg.CollectionCacheTTL
	if s.cfg.CacheEnabled {
		if s.cache, err = cache.New(cacheCfg, s.logger); err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		s.DeferClose(s.cache.Close)
	} else {
		s.cache = cache.Disabled(cacheCfg, s.logger)
	}

	s.bus, err = eventbus.New(eventbus.Config{
		NATSURL:       s.cfg.NATSURL,
		RedisAddr:     s.cfg.RedisAddr,
		RedisPassword: s.cfg.RedisPassword,
		RedisDB:       s.cfg.RedisDB,
	}, s.instanceID, s.logger)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	s.DeferClose(s.bus.Close)

	var locker locking.Locker = locking.NewLocalLocker()
	if s.cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		s.DeferClose(s.redis.Close)
		locker = locking.NewRedisLocker(s.redis, s.cfg.LockLease, s.logger)
	}

	source := collection.NewCachedSource(collection.NewRepository(database, s.logger), s.cache, s.logger)
	s.store = playout.NewStore(database, s.logger)
	s.exporter = schedule.NewExportService(database, s.logger)

	s.scheduler = scheduler.New(
		s.store,
		NewPlayoutBuilder(s.cfg, source, s.logger),
		locker,
		s.bus,
		schedulerstate.NewStore(),
		s.cfg.SchedulerInterval,
		s.logger,
	)
	s.scheduler.SetInvalidator(source)

	if s.cfg.LeaderElectionEnabled {
		electionCfg := leadership.DefaultConfig()
		electionCfg.InstanceID = s.instanceID
		election := leadership.NewElection(s.redis, electionCfg, s.logger)
		s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.bus, s.logger)
	}

	s.webhooks = webhooks.NewService(database, s.bus, s.cfg.WebhookTimeout, s.logger)
	s.webhooks.SetGate(s.runsScheduler)
	s.integrity = integrity.NewService(database, s.logger)
	return nil
}

// AttachLogBuffer exposes recent logs under /api/v1/logs.
func (s *Server) AttachLogBuffer(b *logbuffer.Buffer) {
	s.logs = b
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("failed to start leader election")
		}
	} else if s.scheduler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			_ = s.scheduler.Run(ctx)
		}()
	}

	if s.webhooks != nil {
		s.webhooks.Start(ctx)
	}

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				db.UpdateConnectionMetrics(s.db)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("failed to stop leader-aware scheduler")
		}
	}
	s.bgCancel()
	s.bgWG.Wait()
	if s.webhooks != nil {
		s.webhooks.Wait()
	}
	s.bgCancel = nil
}

// runsScheduler reports whether this instance is currently extending playouts.
func (s *Server) runsScheduler() bool {
	if s.leaderAwareScheduler != nil {
		return s.leaderAwareScheduler.Running()
	}
	return s.scheduler != nil
}

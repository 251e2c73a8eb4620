package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/auth"
	"github.com/ukydev/fleetfusion/internal/config"
	"github.com/ukydev/fleetfusion/internal/db"
	"github.com/ukydev/fleetfusion/internal/handlers"
	"github.com/ukydev/fleetfusion/internal/hub"
	"github.com/ukydev/fleetfusion/internal/metrics"
	"github.com/ukydev/fleetfusion/internal/middleware"
	"github.com/ukydev/fleetfusion/internal/models"
	"github.com/ukydev/fleetfusion/internal/routing"
	"github.com/ukydev/fleetfusion/internal/simulator"
	"github.com/ukydev/fleetfusion/internal/sink"
)

// server bundles what the HTTP layer needs.
type server struct {
	cfg     config.Config
	sim     *simulator.Simulator
	hub     *hub.Hub
	auth    *auth.Service      // nil when REQUIRE_AUTH is off
	archive db.EventCollection // nil without MongoDB
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)

	fleet := handlers.NewFleetHandler(s.sim)
	r.Get("/health", fleet.Health)
	r.Handle("/metrics", metrics.Handler())

	var authMW *middleware.AuthMiddleware
	if s.auth != nil {
		authMW = middleware.NewAuthMiddleware(s.auth)
	}
	allow := func(action string) func(http.Handler) http.Handler {
		if authMW == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return authMW.RequirePermission(action)
	}

	limiter := middleware.NewRateLimitMiddleware()
	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.RateLimit(s.cfg.RateLimitMax, s.cfg.RateLimitWindow))
		if authMW != nil {
			r.Use(authMW.Authenticate)
			r.Post("/auth/login", handlers.NewAuthHandler(s.auth).Login)
		}

		r.With(allow("view_fleet")).Get("/snapshot", fleet.Snapshot)
		r.With(allow("execute_arbitrage")).Post("/arbitrage/execute", fleet.Execute)
		r.With(allow("dismiss_arbitrage")).Post("/arbitrage/dismiss", fleet.Dismiss)
		r.With(allow("view_fleet")).Get("/ws", s.hub.HandleWS)
		if s.archive != nil {
			// the archive is for dispatch staff, not dashboard viewers
			archive := r.With(allow("view_fleet"))
			if authMW != nil {
				archive = archive.With(authMW.RequireRole(models.RoleOperator))
			}
			archive.Get("/archive/events", handlers.NewArchiveHandler(s.archive).Events)
		}
	})
	return r
}

// setupSinks connects the optional exporters. A sink that cannot connect is
// skipped with a warning.
func setupSinks(ctx context.Context, cfg config.Config) ([]simulator.Observer, db.EventCollection, func()) {
	var (
		observers []simulator.Observer
		archive   db.EventCollection
		closers   []func()
	)

	if cfg.MongoURI != "" {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.WithError(err).Warn("MongoDB unavailable, event archive disabled")
		} else {
			events, incidents := db.NewArchive(client, cfg.MongoDB)
			ms := sink.NewMongoSink(events, incidents, sink.DefaultQueueSize)
			ms.Start(context.Background())
			observers = append(observers, ms)
			archive = events
			closers = append(closers, func() {
				ms.Close()
				if err := client.Disconnect(context.Background()); err != nil {
					log.WithError(err).Warn("MongoDB disconnect failed")
				}
			})
			log.WithField("db", cfg.MongoDB).Info("Event archive enabled")
		}
	}

	if cfg.MQTTBroker != "" {
		client, err := sink.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.WithError(err).Warn("MQTT broker unavailable, event publishing disabled")
		} else {
			ms := sink.NewMQTTSink(client, cfg.MQTTTopicPrefix, sink.DefaultQueueSize)
			ms.Start(context.Background())
			observers = append(observers, ms)
			closers = append(closers, func() {
				ms.Close()
				client.Disconnect(250)
			})
			log.WithField("prefix", cfg.MQTTTopicPrefix).Info("MQTT publishing enabled")
		}
	}

	return observers, archive, func() {
		for _, c := range closers {
			c()
		}
	}
}

func newSimulator(cfg config.Config, observers ...simulator.Observer) *simulator.Simulator {
	simCfg := simulator.DefaultConfig()
	simCfg.RequestDelay = cfg.RouteRequestDelay
	simCfg.FixGrace = cfg.FixGrace
	simCfg.MoveInterval = cfg.MoveInterval
	resolver := routing.NewOSRMResolver(cfg.OSRMBaseURL, cfg.RouteTimeout)
	return simulator.New(simCfg, resolver, observers...)
}

func newAuthService(cfg config.Config) (*auth.Service, error) {
	if !cfg.RequireAuth {
		return nil, nil
	}
	svc, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := svc.AddOperator(cfg.OperatorUsername, cfg.OperatorPassword, models.RoleOperator); err != nil {
		return nil, fmt.Errorf("register operator: %w", err)
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using the default secret")
	}
	return svc, nil
}

func run(ctx context.Context, cfg config.Config) error {
	authService, err := newAuthService(cfg)
	if err != nil {
		return err
	}

	observers, archive, closeSinks := setupSinks(ctx, cfg)
	defer closeSinks()

	sim := newSimulator(cfg, observers...)
	wsHub := hub.New(sim)
	if authService != nil {
		wsHub.CanAct = middleware.CanPerform
	}
	sim.AddObserver(wsHub)
	go wsHub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(&server{cfg: cfg, sim: sim, hub: wsHub, auth: authService, archive: archive}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		sim.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-errCh:
		err = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Warn("HTTP shutdown incomplete")
	}
	sim.Stop()
	<-simDone
	return err
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("FleetFusion server failed")
	}
}

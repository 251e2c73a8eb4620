package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/config"
	"github.com/ukydev/fleetfusion/internal/models"
	"github.com/ukydev/fleetfusion/internal/routing"
	"github.com/ukydev/fleetfusion/internal/simulator"
)

// settle is how long the runner keeps going after the last scripted step
// when nobody acts on the opportunity.
const settle = 2 * time.Second

// eventLogger writes every agent event to the log and, when autoExecute is
// set, accepts the first opportunity it sees.
type eventLogger struct {
	simulator.NopObserver

	autoExecute bool
	sim         *simulator.Simulator

	once      sync.Once
	requested bool
	started   chan struct{}
	closed    chan models.IncidentRecord
}

func newEventLogger(autoExecute bool) *eventLogger {
	return &eventLogger{
		autoExecute: autoExecute,
		started:     make(chan struct{}),
		closed:      make(chan models.IncidentRecord, 1),
	}
}

func (e *eventLogger) EventLogged(ev models.AgentEvent) {
	entry := log.WithFields(log.Fields{
		"event_id": ev.ID,
		"type":     ev.Type,
		"severity": ev.Severity,
	})
	switch ev.Severity {
	case models.SeverityCritical:
		entry.Error(ev.Message)
	case models.SeverityWarning:
		entry.Warn(ev.Message)
	default:
		entry.Info(ev.Message)
	}
}

func (e *eventLogger) SnapshotChanged(snap models.Snapshot) {
	if snap.Phase == models.PhasePlayback {
		e.once.Do(func() { close(e.started) })
	}
	if e.autoExecute && !e.requested && snap.Arbitrage != nil {
		e.requested = true
		opp := *snap.Arbitrage
		log.WithFields(log.Fields{
			"truck_id":    opp.TruckID,
			"net_savings": opp.NetSavings.StringFixed(0),
		}).Info("Auto-executing arbitrage")
		// Observers run under the simulator lock.
		go e.sim.ExecuteFix()
	}
}

func (e *eventLogger) IncidentClosed(rec models.IncidentRecord) {
	select {
	case e.closed <- rec:
	default:
	}
}

// runHeadless plays one session and returns its final state together with
// the closed incident, if any.
func runHeadless(ctx context.Context, simCfg simulator.Config, resolver routing.Resolver, autoExecute bool) (models.Snapshot, *models.IncidentRecord) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := newEventLogger(autoExecute)
	sim := simulator.New(simCfg, resolver, logger)
	logger.sim = sim

	done := make(chan struct{})
	go func() {
		defer close(done)
		sim.Run(ctx)
	}()

	var incident *models.IncidentRecord
	select {
	case <-logger.started:
		wait := simulator.LastOffset(simCfg.Timeline) + simCfg.FixGrace + settle
		select {
		case rec := <-logger.closed:
			incident = &rec
		case <-time.After(wait):
		case <-ctx.Done():
		}
	case <-done:
	case <-ctx.Done():
	}

	cancel()
	<-done
	return sim.Snapshot(), incident
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

	simCfg := simulator.DefaultConfig()
	simCfg.RequestDelay = cfg.RouteRequestDelay
	simCfg.FixGrace = cfg.FixGrace
	simCfg.MoveInterval = cfg.MoveInterval

	log.WithFields(log.Fields{
		"fleet_size":   len(simCfg.Fleet),
		"osrm_url":     cfg.OSRMBaseURL,
		"auto_execute": cfg.AutoExecute,
	}).Info("Starting fleet simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := routing.NewOSRMResolver(cfg.OSRMBaseURL, cfg.RouteTimeout)
	snap, incident := runHeadless(ctx, simCfg, resolver, cfg.AutoExecute)

	for _, t := range snap.Trucks {
		log.WithFields(log.Fields{
			"truck_id":     t.ID,
			"status":       t.Status,
			"velocity":     t.Velocity,
			"route_source": t.RouteSource,
			"remaining_km": int(t.RemainingKm),
		}).Info("Final truck state")
	}
	if incident != nil {
		log.WithFields(log.Fields{
			"truck_id":    incident.TruckID,
			"outcome":     incident.Outcome,
			"net_savings": incident.NetSavings,
		}).Info("Incident closed")
	} else if snap.Arbitrage != nil {
		log.WithField("truck_id", snap.Arbitrage.TruckID).Warn("Simulation ended with an open opportunity")
	}
}

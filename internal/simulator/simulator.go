// Package simulator runs the scripted fleet incident: it initializes trucks
// with resolved routes, then plays an ordered timeline of mutations from a
// single scheduler loop and serves consistent snapshots to consumers.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/geo"
	"github.com/ukydev/fleetfusion/internal/metrics"
	"github.com/ukydev/fleetfusion/internal/models"
	"github.com/ukydev/fleetfusion/internal/routing"
)

// StoppedETAHours is reported as ETA for trucks slower than 5 km/h.
const StoppedETAHours = 999.0

// ErrStopped is returned by Initialize once the simulator has been torn down.
var ErrStopped = errors.New("simulator stopped")

// idleWait bounds how long the scheduler loop sleeps with nothing due.
const idleWait = time.Minute

// Observer is notified of every change. Callbacks run with the simulator lock
// held, in mutation order; they must not block or call back into the
// simulator synchronously.
type Observer interface {
	EventLogged(ev models.AgentEvent)
	SnapshotChanged(snap models.Snapshot)
	IncidentClosed(rec models.IncidentRecord)
}

// NopObserver can be embedded to implement only part of Observer.
type NopObserver struct{}

func (NopObserver) EventLogged(models.AgentEvent)        {}
func (NopObserver) SnapshotChanged(models.Snapshot)      {}
func (NopObserver) IncidentClosed(models.IncidentRecord) {}

// Config holds the static session setup.
type Config struct {
	Fleet    []TruckConfig
	Timeline []Step
	// RequestDelay separates consecutive route resolutions.
	RequestDelay time.Duration
	// FixGrace is the wait between ExecuteFix and the resolved state.
	FixGrace time.Duration
	// MoveInterval is the truck movement tick; zero disables movement.
	MoveInterval time.Duration
	Clock        Clock
}

// DefaultConfig returns the reference demo session.
func DefaultConfig() Config {
	return Config{
		Fleet:        ReferenceFleet(),
		Timeline:     ReferenceTimeline(ReferenceIncident()),
		RequestDelay: 300 * time.Millisecond,
		FixGrace:     1800 * time.Millisecond,
		MoveInterval: time.Second,
		Clock:        SystemClock{},
	}
}

type pendingFix struct {
	due time.Duration
	opp models.ArbitrageOpportunity
}

// Simulator owns the trucks, the agent log and the opportunity slot.
type Simulator struct {
	cfg      Config
	steps    []Step
	resolver routing.Resolver
	clock    Clock
	wake     chan struct{}

	mu          sync.Mutex
	observers   []Observer
	phase       models.Phase
	version     uint64
	trucks      []models.Truck
	nominal     map[string]float64
	cursors     map[string]*geo.Cursor
	events      []models.AgentEvent // oldest first
	opportunity *models.ArbitrageOpportunity
	startedAt   time.Time
	next        int
	fix         *pendingFix
	lastMove    time.Duration
}

// New creates a simulator in the initializing phase.
func New(cfg Config, resolver routing.Resolver, observers ...Observer) *Simulator {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	steps := make([]Step, len(cfg.Timeline))
	copy(steps, cfg.Timeline)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })

	return &Simulator{
		cfg:       cfg,
		steps:     steps,
		resolver:  resolver,
		clock:     clock,
		wake:      make(chan struct{}, 1),
		observers: observers,
		phase:     models.PhaseInitializing,
		nominal:   make(map[string]float64),
		cursors:   make(map[string]*geo.Cursor),
	}
}

// AddObserver registers o for future changes.
func (s *Simulator) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Run initializes the fleet, plays the timeline and tears the simulator
// down when ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	defer s.Stop()

	if err := s.Initialize(ctx); err != nil {
		return
	}
	if !s.StartPlayback() {
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}

		s.Advance()
		d, ok := s.nextDue()
		if !ok {
			if s.Phase() == models.PhaseStopped {
				return
			}
			d = idleWait
		}
		timer.Reset(d)
	}
}

// Initialize resolves every configured route in order, pausing RequestDelay
// between requests. Resolution failures fall back to a straight line; the
// only error is ctx cancellation.
func (s *Simulator) Initialize(ctx context.Context) error {
	for i, tc := range s.cfg.Fleet {
		if i > 0 && s.cfg.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RequestDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Phase() == models.PhaseStopped {
			return ErrStopped
		}

		route, source, err := routing.RouteOrFallback(ctx, s.resolver, tc.Origin, tc.Destination)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.WithError(err).WithField("truck_id", tc.ID).Warn("Route resolution failed, using fallback")
		}
		s.addTruck(tc, route, source)
	}

	log.WithField("trucks", len(s.cfg.Fleet)).Info("Fleet initialized")
	return nil
}

func (s *Simulator) addTruck(tc TruckConfig, route []models.Coordinate, source models.RouteSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == models.PhaseStopped {
		return
	}

	cursor := geo.NewCursor(route)
	truck := models.Truck{
		ID:          tc.ID,
		Driver:      tc.Driver,
		CargoValue:  tc.CargoValue,
		ContractID:  tc.ContractID,
		Velocity:    tc.Velocity,
		Status:      models.StatusOnTime,
		Position:    route[0],
		Destination: route[len(route)-1],
		Route:       route,
		RouteSource: source,
	}
	refreshETA(&truck, cursor)
	s.trucks = append(s.trucks, truck)
	s.cursors[tc.ID] = cursor
	s.nominal[tc.ID] = tc.Velocity
	metrics.RouteResolutions.WithLabelValues(string(source)).Inc()

	if source == models.RouteSourceOSRM {
		s.logEventLocked(models.EventSensor, models.SeverityInfo,
			fmt.Sprintf("Route loaded for %s: %d waypoints, %.0f km", tc.ID, len(route), truck.RemainingKm))
	} else {
		s.logEventLocked(models.EventSystem, models.SeverityWarning,
			fmt.Sprintf("Routing service unavailable for %s, using straight-line route", tc.ID))
	}
	s.publishLocked()
}

// StartPlayback ends initialization. Timeline offsets count from here.
func (s *Simulator) StartPlayback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseInitializing {
		return false
	}
	s.phase = models.PhasePlayback
	s.startedAt = s.clock.Now()
	s.lastMove = 0
	s.publishLocked()
	log.WithField("steps", len(s.steps)).Info("Timeline playback started")
	return true
}

// Advance applies everything due at the clock's current time: movement,
// timeline steps and a pending fix commit, in offset order.
func (s *Simulator) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhasePlayback {
		return
	}

	now := s.elapsedLocked()
	changed := false

	if s.cfg.MoveInterval > 0 && now-s.lastMove >= s.cfg.MoveInterval {
		s.moveLocked(now - s.lastMove)
		s.lastMove = now
		changed = true
	}

	for {
		stepDue := s.next < len(s.steps) && s.steps[s.next].At <= now
		fixDue := s.fix != nil && s.fix.due <= now
		if !stepDue && !fixDue {
			break
		}
		if fixDue && (!stepDue || s.fix.due < s.steps[s.next].At) {
			s.commitFixLocked()
		} else {
			step := s.steps[s.next]
			s.next++
			log.WithFields(log.Fields{"step": step.Name, "offset": step.At}).Debug("Timeline step fired")
			step.Apply(&Tx{s: s})
		}
		changed = true
	}

	if changed {
		s.publishLocked()
	}
}

// nextDue reports how long until the next scheduled item.
func (s *Simulator) nextDue() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhasePlayback {
		return 0, false
	}

	var due time.Duration
	found := false
	consider := func(at time.Duration) {
		if !found || at < due {
			due = at
			found = true
		}
	}
	if s.next < len(s.steps) {
		consider(s.steps[s.next].At)
	}
	if s.fix != nil {
		consider(s.fix.due)
	}
	if s.cfg.MoveInterval > 0 {
		consider(s.lastMove + s.cfg.MoveInterval)
	}
	if !found {
		return 0, false
	}
	d := due - s.elapsedLocked()
	if d < 0 {
		d = 0
	}
	return d, true
}

// Stop tears the simulator down. Nothing is mutated afterwards.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.phase == models.PhaseStopped {
		s.mu.Unlock()
		return
	}
	s.phase = models.PhaseStopped
	s.fix = nil
	s.mu.Unlock()

	s.signal()
	log.Info("Simulator stopped")
}

// Phase returns the current phase.
func (s *Simulator) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot returns a deep copy of the current state.
func (s *Simulator) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ExecuteFix dispatches the relief for the active opportunity. The truck is
// marked resolved after FixGrace. Returns false when there is nothing to fix.
func (s *Simulator) ExecuteFix() bool {
	s.mu.Lock()
	if s.phase != models.PhasePlayback || s.opportunity == nil || s.fix != nil {
		s.mu.Unlock()
		return false
	}
	opp := *s.opportunity
	s.logEventLocked(models.EventArbitrage, models.SeverityInfo,
		fmt.Sprintf("%s resolved, relief dispatched via %s (net savings $%s)",
			opp.TruckID, opp.Provider, opp.NetSavings.StringFixed(0)))
	s.fix = &pendingFix{due: s.elapsedLocked() + s.cfg.FixGrace, opp: opp}
	s.publishLocked()
	s.mu.Unlock()

	s.signal()
	log.WithField("truck_id", opp.TruckID).Info("Arbitrage fix executed")
	return true
}

// DismissOpportunity clears the active opportunity. With nothing active it
// changes nothing and logs nothing.
func (s *Simulator) DismissOpportunity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == models.PhaseStopped || s.opportunity == nil {
		return false
	}
	opp := *s.opportunity
	s.opportunity = nil

	// A pending fix already owns the incident; only the modal closes.
	if s.fix == nil {
		s.logEventLocked(models.EventSystem, models.SeverityInfo,
			fmt.Sprintf("Arbitrage opportunity for %s dismissed by operator", opp.TruckID))
		s.closeIncidentLocked(opp, models.OutcomeDismissed)
	}
	s.publishLocked()
	return true
}

func (s *Simulator) commitFixLocked() {
	f := s.fix
	s.fix = nil
	id := f.opp.TruckID

	s.setStatusLocked(id, models.StatusResolved)
	s.setVelocityLocked(id, s.nominal[id])
	if s.opportunity != nil && s.opportunity.TruckID == id {
		s.opportunity = nil
	}
	s.logEventLocked(models.EventSystem, models.SeverityInfo,
		fmt.Sprintf("%s back on schedule at %.0f km/h", id, s.nominal[id]))
	s.closeIncidentLocked(f.opp, models.OutcomeExecuted)
}

func (s *Simulator) closeIncidentLocked(opp models.ArbitrageOpportunity, outcome models.IncidentOutcome) {
	metrics.Opportunities.WithLabelValues(string(outcome)).Inc()
	rec := models.NewIncidentRecord(opp, outcome, s.clock.Now())
	for _, o := range s.observers {
		o.IncidentClosed(rec)
	}
}

func (s *Simulator) offerLocked(opp models.ArbitrageOpportunity) {
	s.opportunity = &opp
	metrics.Opportunities.WithLabelValues("offered").Inc()
}

func (s *Simulator) indexLocked(id string) int {
	for i := range s.trucks {
		if s.trucks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Simulator) setVelocityLocked(id string, kmh float64) bool {
	i := s.indexLocked(id)
	if i < 0 {
		log.WithField("truck_id", id).Warn("Velocity change for unknown truck")
		return false
	}
	s.trucks[i].Velocity = kmh
	refreshETA(&s.trucks[i], s.cursors[id])
	return true
}

func (s *Simulator) setStatusLocked(id string, status models.Status) bool {
	i := s.indexLocked(id)
	if i < 0 {
		log.WithField("truck_id", id).Warn("Status change for unknown truck")
		return false
	}
	current := s.trucks[i].Status
	if !current.CanTransition(status) {
		log.WithFields(log.Fields{"truck_id": id, "from": current, "to": status}).Warn("Rejected status transition")
		return false
	}
	s.trucks[i].Status = status
	return true
}

func (s *Simulator) moveLocked(dt time.Duration) {
	for i := range s.trucks {
		t := &s.trucks[i]
		cursor := s.cursors[t.ID]
		if t.Velocity > 0 {
			t.Position = cursor.Advance(t.Velocity * dt.Hours())
		}
		refreshETA(t, cursor)
	}
}

func (s *Simulator) logEventLocked(typ models.EventType, severity models.Severity, message string) {
	ev := models.NewAgentEvent(s.clock.Now(), typ, severity, message)
	s.events = append(s.events, ev)
	metrics.AgentEvents.WithLabelValues(string(typ), string(severity)).Inc()
	log.WithFields(log.Fields{"type": typ, "severity": severity}).Debug(message)
	for _, o := range s.observers {
		o.EventLogged(ev)
	}
}

func (s *Simulator) publishLocked() {
	s.version++
	if len(s.observers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, o := range s.observers {
		o.SnapshotChanged(snap)
	}
}

func (s *Simulator) snapshotLocked() models.Snapshot {
	trucks := make([]models.Truck, len(s.trucks))
	for i, t := range s.trucks {
		trucks[i] = t.Clone()
	}
	events := make([]models.AgentEvent, len(s.events))
	for i, ev := range s.events {
		events[len(s.events)-1-i] = ev
	}
	var opp *models.ArbitrageOpportunity
	if s.opportunity != nil {
		cp := *s.opportunity
		opp = &cp
	}
	return models.Snapshot{
		Version:   s.version,
		Phase:     s.phase,
		Trucks:    trucks,
		Events:    events,
		Arbitrage: opp,
	}
}

func (s *Simulator) elapsedLocked() time.Duration {
	return s.clock.Now().Sub(s.startedAt)
}

func (s *Simulator) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func refreshETA(t *models.Truck, cursor *geo.Cursor) {
	if cursor != nil {
		t.RemainingKm = cursor.RemainingKm()
	}
	switch {
	case t.RemainingKm == 0:
		t.ETAHours = 0
	case t.Velocity < 5:
		t.ETAHours = StoppedETAHours
	default:
		t.ETAHours = t.RemainingKm / t.Velocity
	}
}

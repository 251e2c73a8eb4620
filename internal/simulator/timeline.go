package simulator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ukydev/fleetfusion/internal/arbitrage"
	"github.com/ukydev/fleetfusion/internal/models"
)

// Step is one scripted mutation, fired At after playback starts.
type Step struct {
	At    time.Duration
	Name  string
	Apply func(tx *Tx)
}

// Tx is the mutation handle passed to a Step. It is only valid inside Apply,
// which runs with the simulator lock held.
type Tx struct {
	s *Simulator
}

// Log appends an agent event.
func (tx *Tx) Log(typ models.EventType, severity models.Severity, message string) {
	tx.s.logEventLocked(typ, severity, message)
}

// Truck returns a copy of the truck with the given ID.
func (tx *Tx) Truck(id string) (models.Truck, bool) {
	if i := tx.s.indexLocked(id); i >= 0 {
		return tx.s.trucks[i].Clone(), true
	}
	return models.Truck{}, false
}

// TruckCount is the number of initialized trucks.
func (tx *Tx) TruckCount() int { return len(tx.s.trucks) }

// SetVelocity changes a truck's speed.
func (tx *Tx) SetVelocity(id string, kmh float64) bool {
	return tx.s.setVelocityLocked(id, kmh)
}

// SetStatus moves a truck to status if the transition is allowed.
func (tx *Tx) SetStatus(id string, status models.Status) bool {
	return tx.s.setStatusLocked(id, status)
}

// Offer makes opp the active opportunity, replacing any previous one.
func (tx *Tx) Offer(opp models.ArbitrageOpportunity) {
	tx.s.offerLocked(opp)
}

// Incident configures the scripted breakdown.
type Incident struct {
	TargetID   string
	Contract   arbitrage.Contract
	DelayHours float64
}

// ReferenceIncident is the TRK-402 breakdown on contract CNT-2024-001.
func ReferenceIncident() Incident {
	return Incident{
		TargetID:   "TRK-402",
		Contract:   arbitrage.ReferenceContracts()["CNT-2024-001"],
		DelayHours: 5,
	}
}

// ReferenceTimeline scripts the demo narrative for inc.
func ReferenceTimeline(inc Incident) []Step {
	id := inc.TargetID
	return []Step{
		{
			At:   2 * time.Second,
			Name: "sensors-online",
			Apply: func(tx *Tx) {
				tx.Log(models.EventSystem, models.SeverityInfo,
					fmt.Sprintf("All fleet sensors operational, monitoring %d trucks", tx.TruckCount()))
			},
		},
		{
			At:   5 * time.Second,
			Name: "target-stopped",
			Apply: func(tx *Tx) {
				tx.SetVelocity(id, 0)
				tx.SetStatus(id, models.StatusDelayed)
				tx.Log(models.EventSensor, models.SeverityWarning,
					fmt.Sprintf("%s velocity dropped to 0 km/h, status %s", id, upper(models.StatusDelayed)))
			},
		},
		{
			At:   8 * time.Second,
			Name: "target-critical",
			Apply: func(tx *Tx) {
				tx.SetStatus(id, models.StatusCritical)
				velocity := 0.0
				if t, ok := tx.Truck(id); ok {
					velocity = t.Velocity
				}
				tx.Log(models.EventAlert, models.SeverityCritical,
					fmt.Sprintf("%s %s: stationary at %.1f km/h (sensor class %s), delivery window at risk",
						id, upper(models.StatusCritical), velocity, arbitrage.ClassifyVelocity(velocity)))
				c := inc.Contract
				tx.Log(models.EventContract, models.SeverityWarning,
					fmt.Sprintf("Contract %s (%s): penalty $%s/h capped at $%s",
						c.ID, c.Client, c.PenaltyPerHour.StringFixed(0), c.MaxPenalty.StringFixed(0)))
			},
		},
		{
			At:   12 * time.Second,
			Name: "arbitrage-offer",
			Apply: func(tx *Tx) {
				opp := arbitrage.Evaluate(inc.Contract, id, inc.DelayHours)
				tx.Offer(opp)
				tx.Log(models.EventArbitrage, models.SeverityCritical,
					fmt.Sprintf("Arbitrage opportunity for %s: %s saves $%s (penalty $%s vs cost $%s)",
						id, opp.SolutionType, opp.NetSavings.StringFixed(0),
						opp.ProjectedPenalty.StringFixed(0), opp.SolutionCost.StringFixed(0)))
			},
		},
	}
}

// LastOffset returns the offset of the latest step.
func LastOffset(steps []Step) time.Duration {
	var last time.Duration
	for _, st := range steps {
		if st.At > last {
			last = st.At
		}
	}
	return last
}

func upper(s models.Status) string {
	return strings.ToUpper(string(s))
}

package models

// Phase of a simulation session.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhasePlayback     Phase = "playback"
	PhaseStopped      Phase = "stopped"
)

// Snapshot is a read-only copy of the simulator state handed to consumers.
// Events are ordered newest first.
type Snapshot struct {
	Version   uint64                `json:"version"`
	Phase     Phase                 `json:"phase"`
	Trucks    []Truck               `json:"trucks"`
	Events    []AgentEvent          `json:"events"`
	Arbitrage *ArbitrageOpportunity `json:"arbitrage"`
}

// Truck looks up a truck by ID.
func (s Snapshot) Truck(id string) (Truck, bool) {
	for _, t := range s.Trucks {
		if t.ID == id {
			return t, true
		}
	}
	return Truck{}, false
}

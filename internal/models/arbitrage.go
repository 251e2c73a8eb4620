package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation is the suggested action for an opportunity.
type Recommendation string

const (
	RecommendExecute Recommendation = "EXECUTE"
	RecommendMonitor Recommendation = "MONITOR"
)

// ArbitrageOpportunity is a proposed remedy for an in-progress delay.
// Build it with NewArbitrageOpportunity so NetSavings stays consistent.
type ArbitrageOpportunity struct {
	TruckID          string          `json:"truckId"`
	ContractID       string          `json:"contractId"`
	ProjectedPenalty decimal.Decimal `json:"projectedPenalty"`
	SolutionType     string          `json:"solutionType"`
	Provider         string          `json:"provider"`
	SolutionCost     decimal.Decimal `json:"solutionCost"`
	NetSavings       decimal.Decimal `json:"netSavings"`
	Recommendation   Recommendation  `json:"recommendation"`
	Details          string          `json:"details"`
}

// NewArbitrageOpportunity derives NetSavings from the penalty and the cost.
func NewArbitrageOpportunity(truckID string, penalty, cost decimal.Decimal, solution, details string) ArbitrageOpportunity {
	return ArbitrageOpportunity{
		TruckID:          truckID,
		ProjectedPenalty: penalty,
		SolutionType:     solution,
		SolutionCost:     cost,
		NetSavings:       penalty.Sub(cost),
		Details:          details,
	}
}

// Consistent reports whether NetSavings equals ProjectedPenalty - SolutionCost.
func (o ArbitrageOpportunity) Consistent() bool {
	return o.NetSavings.Equal(o.ProjectedPenalty.Sub(o.SolutionCost))
}

// IncidentOutcome records how an opportunity was closed.
type IncidentOutcome string

const (
	OutcomeExecuted  IncidentOutcome = "executed"
	OutcomeDismissed IncidentOutcome = "dismissed"
)

// IncidentRecord is the archived summary of a closed opportunity.
type IncidentRecord struct {
	TruckID          string          `bson:"truck_id" json:"truck_id"`
	ContractID       string          `bson:"contract_id" json:"contract_id"`
	Outcome          IncidentOutcome `bson:"outcome" json:"outcome"`
	ProjectedPenalty float64         `bson:"projected_penalty" json:"projected_penalty"` // in USD
	SolutionCost     float64         `bson:"solution_cost" json:"solution_cost"`
	NetSavings       float64         `bson:"net_savings" json:"net_savings"`
	ClosedAt         time.Time       `bson:"closed_at" json:"closed_at"`
}

// NewIncidentRecord summarizes opp for archiving.
func NewIncidentRecord(opp ArbitrageOpportunity, outcome IncidentOutcome, at time.Time) IncidentRecord {
	return IncidentRecord{
		TruckID:          opp.TruckID,
		ContractID:       opp.ContractID,
		Outcome:          outcome,
		ProjectedPenalty: opp.ProjectedPenalty.InexactFloat64(),
		SolutionCost:     opp.SolutionCost.InexactFloat64(),
		NetSavings:       opp.NetSavings.InexactFloat64(),
		ClosedAt:         at,
	}
}

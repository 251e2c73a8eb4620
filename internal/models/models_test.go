package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{"on-time to delayed", StatusOnTime, StatusDelayed, true},
		{"delayed to critical", StatusDelayed, StatusCritical, true},
		{"critical to resolved", StatusCritical, StatusResolved, true},
		{"same status", StatusCritical, StatusCritical, true},
		{"skip delayed", StatusOnTime, StatusCritical, false},
		{"skip to resolved", StatusDelayed, StatusResolved, false},
		{"backwards", StatusCritical, StatusDelayed, false},
		{"resolved to on-time", StatusResolved, StatusOnTime, false},
		{"unknown target", StatusOnTime, "lost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransition(tt.to))
		})
	}
}

func TestNewAgentEvent_UniqueIDs(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ev := NewAgentEvent(now, EventSystem, SeverityInfo, "tick")
		assert.False(t, seen[ev.ID], "duplicate id %s", ev.ID)
		seen[ev.ID] = true
	}
}

func TestNewArbitrageOpportunity_NetSavings(t *testing.T) {
	opp := NewArbitrageOpportunity("TRK-402", decimal.NewFromInt(2500), decimal.NewFromInt(800), "Relief Truck", "")
	assert.True(t, opp.NetSavings.Equal(decimal.NewFromInt(1700)))
	assert.True(t, opp.Consistent())

	opp.NetSavings = decimal.NewFromInt(1)
	assert.False(t, opp.Consistent())
}

func TestCoordinate_JSONOrder(t *testing.T) {
	data, err := json.Marshal(NewCoordinate(73.86, 18.52))
	require.NoError(t, err)
	assert.JSONEq(t, `[73.86, 18.52]`, string(data))
}

func TestTruck_CloneDoesNotAlias(t *testing.T) {
	truck := Truck{ID: "TRK-1", Route: []Coordinate{{1, 2}, {3, 4}}}
	cp := truck.Clone()
	cp.Route[0] = Coordinate{9, 9}
	assert.Equal(t, Coordinate{1, 2}, truck.Route[0])
}

func TestRole_HasPermission(t *testing.T) {
	assert.True(t, RoleAdmin.HasPermission("anything"))
	assert.True(t, RoleOperator.HasPermission("execute_arbitrage"))
	assert.True(t, RoleViewer.HasPermission("view_fleet"))
	assert.False(t, RoleViewer.HasPermission("execute_arbitrage"))
	assert.False(t, Role("ghost").HasPermission("view_fleet"))
	assert.False(t, IsValidRole("ghost"))
}

func TestIncidentRecord_FromOpportunity(t *testing.T) {
	opp := NewArbitrageOpportunity("TRK-402", decimal.NewFromInt(2500), decimal.NewFromInt(800), "Relief Truck", "")
	opp.ContractID = "CNT-2024-001"
	rec := NewIncidentRecord(opp, OutcomeExecuted, time.Unix(0, 0))
	assert.Equal(t, 1700.0, rec.NetSavings)
	assert.Equal(t, "CNT-2024-001", rec.ContractID)
	assert.Equal(t, OutcomeExecuted, rec.Outcome)
}

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleetfusion/internal/models"
	"github.com/ukydev/fleetfusion/internal/simulator"
)

func fastConfig() simulator.Config {
	cfg := simulator.DefaultConfig()
	steps := make([]simulator.Step, len(cfg.Timeline))
	for i, st := range cfg.Timeline {
		st.At /= 100
		steps[i] = st
	}
	cfg.Timeline = steps
	cfg.RequestDelay = time.Millisecond
	cfg.FixGrace = 20 * time.Millisecond
	cfg.MoveInterval = 10 * time.Millisecond
	return cfg
}

func truck(t *testing.T, snap models.Snapshot, id string) models.Truck {
	t.Helper()
	tr, ok := snap.Truck(id)
	require.True(t, ok)
	return tr
}

func TestRunHeadless_AutoExecute(t *testing.T) {
	snap, incident := runHeadless(context.Background(), fastConfig(), nil, true)

	require.NotNil(t, incident)
	assert.Equal(t, models.OutcomeExecuted, incident.Outcome)
	assert.Equal(t, "TRK-402", incident.TruckID)
	assert.Equal(t, 1700.0, incident.NetSavings)

	target := truck(t, snap, "TRK-402")
	assert.Equal(t, models.StatusResolved, target.Status)
	assert.Equal(t, 68.0, target.Velocity)
	assert.Nil(t, snap.Arbitrage)
	assert.Equal(t, models.PhaseStopped, snap.Phase)
}

func TestRunHeadless_WithoutOperator(t *testing.T) {
	cfg := fastConfig()
	start := time.Now()
	snap, incident := runHeadless(context.Background(), cfg, nil, false)

	assert.Nil(t, incident)
	require.NotNil(t, snap.Arbitrage)
	assert.Equal(t, models.StatusCritical, truck(t, snap, "TRK-402").Status)
	assert.GreaterOrEqual(t, time.Since(start), simulator.LastOffset(cfg.Timeline)+settle)

	for _, tr := range snap.Trucks {
		assert.Equal(t, models.RouteSourceFallback, tr.RouteSource)
	}
}

func TestRunHeadless_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, incident := runHeadless(ctx, fastConfig(), nil, true)
	assert.Nil(t, incident)
	assert.Equal(t, models.PhaseStopped, snap.Phase)
}

func TestEventLogger_RequestsOnce(t *testing.T) {
	e := newEventLogger(false)
	e.SnapshotChanged(models.Snapshot{Phase: models.PhasePlayback})
	e.SnapshotChanged(models.Snapshot{Phase: models.PhasePlayback})

	select {
	case <-e.started:
	default:
		t.Fatal("expected started to be closed")
	}
	assert.False(t, e.requested)

	e.IncidentClosed(models.IncidentRecord{TruckID: "a"})
	e.IncidentClosed(models.IncidentRecord{TruckID: "b"})
	rec := <-e.closed
	assert.Equal(t, "a", rec.TruckID)
}

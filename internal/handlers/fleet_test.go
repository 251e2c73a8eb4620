package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleetfusion/internal/db"
	"github.com/ukydev/fleetfusion/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type fakeController struct {
	snap      models.Snapshot
	executes  int
	dismisses int
}

func (f *fakeController) Snapshot() models.Snapshot { return f.snap }

func (f *fakeController) ExecuteFix() bool {
	f.executes++
	return f.snap.Arbitrage != nil
}

func (f *fakeController) DismissOpportunity() bool {
	f.dismisses++
	ok := f.snap.Arbitrage != nil
	f.snap.Arbitrage = nil
	return ok
}

func sampleSnapshot() models.Snapshot {
	opp := models.NewArbitrageOpportunity("TRK-402", decimal.NewFromInt(2500), decimal.NewFromInt(800), "Relief Truck (QuickFreight_India)", "")
	return models.Snapshot{
		Version: 12,
		Phase:   models.PhasePlayback,
		Trucks: []models.Truck{{
			ID:       "TRK-402",
			Driver:   "Priya Sharma",
			Status:   models.StatusCritical,
			Position: models.NewCoordinate(73.8567, 18.5204),
			Route:    []models.Coordinate{models.NewCoordinate(73.8567, 18.5204), models.NewCoordinate(72.8777, 19.0760)},
		}},
		Events:    []models.AgentEvent{models.NewAgentEvent(time.Now(), models.EventArbitrage, models.SeverityCritical, "offer")},
		Arbitrage: &opp,
	}
}

func TestFleetHandler_Snapshot(t *testing.T) {
	h := NewFleetHandler(&fakeController{snap: sampleSnapshot()})

	req := httptest.NewRequest("GET", "/api/snapshot", nil)
	w := httptest.NewRecorder()
	h.Snapshot(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "trucks")
	assert.Contains(t, body, "events")
	assert.Contains(t, body, "arbitrage")

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Trucks, 1)
	assert.Equal(t, models.NewCoordinate(73.8567, 18.5204), snap.Trucks[0].Position)
	require.NotNil(t, snap.Arbitrage)
	assert.True(t, snap.Arbitrage.NetSavings.Equal(decimal.NewFromInt(1700)))
}

func TestFleetHandler_Actions(t *testing.T) {
	ctrl := &fakeController{snap: sampleSnapshot()}
	h := NewFleetHandler(ctrl)

	do := func(fn http.HandlerFunc, method string) (int, ActionResponse) {
		req := httptest.NewRequest(method, "/api/arbitrage", nil)
		w := httptest.NewRecorder()
		fn(w, req)
		var resp ActionResponse
		if w.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		}
		return w.Code, resp
	}

	code, resp := do(h.Execute, "POST")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Accepted)

	code, resp = do(h.Dismiss, "POST")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Accepted)

	code, resp = do(h.Dismiss, "POST")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Accepted)

	code, _ = do(h.Execute, "GET")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, 1, ctrl.executes)
	assert.Equal(t, 2, ctrl.dismisses)
}

func TestFleetHandler_Health(t *testing.T) {
	h := NewFleetHandler(&fakeController{snap: models.Snapshot{Phase: models.PhaseInitializing}})
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","phase":"initializing"}`, w.Body.String())
}

// MockEventCollection is a mock implementation of EventCollection
type MockEventCollection struct {
	mock.Mock
}

func (m *MockEventCollection) InsertEvent(ctx context.Context, ev models.AgentEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockEventCollection) FindEvents(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (db.Cursor, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(db.Cursor), args.Error(1)
}

type sliceCursor struct {
	events []models.AgentEvent
	closed bool
}

func (c *sliceCursor) All(_ context.Context, out interface{}) error {
	*(out.(*[]models.AgentEvent)) = c.events
	return nil
}

func (c *sliceCursor) Close(context.Context) error {
	c.closed = true
	return nil
}

func TestArchiveHandler_Events(t *testing.T) {
	t.Run("filters by type", func(t *testing.T) {
		coll := new(MockEventCollection)
		cursor := &sliceCursor{events: []models.AgentEvent{{ID: "e1", Type: models.EventAlert}}}
		coll.On("FindEvents", mock.Anything, bson.M{"type": "alert"}).Return(cursor, nil)

		h := NewArchiveHandler(coll)
		w := httptest.NewRecorder()
		h.Events(w, httptest.NewRequest("GET", "/api/archive/events?type=alert&limit=5", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var events []models.AgentEvent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, "e1", events[0].ID)
		assert.True(t, cursor.closed)
		coll.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		coll := new(MockEventCollection)
		h := NewArchiveHandler(coll)
		w := httptest.NewRecorder()
		h.Events(w, httptest.NewRequest("GET", "/api/archive/events?limit=abc", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		coll.AssertNotCalled(t, "FindEvents", mock.Anything, mock.Anything)
	})

	t.Run("query failure", func(t *testing.T) {
		coll := new(MockEventCollection)
		coll.On("FindEvents", mock.Anything, bson.M{}).Return(nil, assert.AnError)

		h := NewArchiveHandler(coll)
		w := httptest.NewRecorder()
		h.Events(w, httptest.NewRequest("GET", "/api/archive/events", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

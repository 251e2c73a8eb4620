package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleetfusion/internal/db"
	"github.com/ukydev/fleetfusion/internal/metrics"
	"github.com/ukydev/fleetfusion/internal/models"
	"go.mongodb.org/mongo-driver/mongo/options"
)

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

// MockIncidentCollection is a mock implementation of IncidentCollection
type MockIncidentCollection struct {
	mock.Mock
}

func (m *MockIncidentCollection) InsertIncident(ctx context.Context, rec models.IncidentRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	block chan struct{}
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: p.err}
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestMQTTSink_PublishesToTopics(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "fleetfusion", 0)
	s.Start(context.Background())

	ev := models.NewAgentEvent(time.Now(), models.EventAlert, models.SeverityCritical, "TRK-402 CRITICAL")
	s.EventLogged(ev)
	s.SnapshotChanged(models.Snapshot{Version: 4, Phase: models.PhasePlayback})
	s.IncidentClosed(models.IncidentRecord{TruckID: "TRK-402", Outcome: models.OutcomeExecuted})
	s.Close()

	msgs := pub.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, "fleetfusion/events", msgs[0].topic)
	assert.False(t, msgs[0].retained)
	assert.Equal(t, "fleetfusion/snapshot", msgs[1].topic)
	assert.True(t, msgs[1].retained)
	assert.Equal(t, "fleetfusion/incidents", msgs[2].topic)

	var got models.AgentEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Message, got.Message)
}

func TestMQTTSink_PublishErrorDoesNotStopWorker(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	s := NewMQTTSink(pub, "ff", 0)
	s.Start(context.Background())

	s.EventLogged(models.AgentEvent{ID: "a"})
	s.EventLogged(models.AgentEvent{ID: "b"})
	s.Close()

	assert.Len(t, pub.all(), 2)
}

func TestMQTTSink_DropsWhenQueueFull(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	s := NewMQTTSink(pub, "ff", 1)
	s.Start(context.Background())
	before := testutil.ToFloat64(metrics.SinkDrops.WithLabelValues("mqtt"))

	// the worker takes the first item and blocks in Publish
	s.EventLogged(models.AgentEvent{ID: "1"})
	assert.Eventually(t, func() bool { return len(s.q.jobs) == 0 }, time.Second, time.Millisecond)
	s.EventLogged(models.AgentEvent{ID: "2"})

	done := make(chan struct{})
	go func() {
		s.EventLogged(models.AgentEvent{ID: "3"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SinkDrops.WithLabelValues("mqtt")))

	close(pub.block)
	s.Close()
	assert.Len(t, pub.all(), 2)
}

func TestMongoSink_ArchivesEventsAndIncidents(t *testing.T) {
	events := new(MockEventCollection)
	incidents := new(MockIncidentCollection)
	ev := models.NewAgentEvent(time.Now(), models.EventSystem, models.SeverityInfo, "All fleet sensors operational")
	rec := models.IncidentRecord{TruckID: "TRK-402", Outcome: models.OutcomeDismissed}
	events.On("InsertEvent", mock.Anything, ev).Return(nil)
	incidents.On("InsertIncident", mock.Anything, rec).Return(nil)

	s := NewMongoSink(events, incidents, 0)
	s.Start(context.Background())
	s.EventLogged(ev)
	s.SnapshotChanged(models.Snapshot{})
	s.IncidentClosed(rec)
	s.Close()

	events.AssertExpectations(t)
	incidents.AssertExpectations(t)
}

func TestMongoSink_InsertFailureIsLogged(t *testing.T) {
	events := new(MockEventCollection)
	incidents := new(MockIncidentCollection)
	events.On("InsertEvent", mock.Anything, mock.Anything).Return(assert.AnError).Twice()

	s := NewMongoSink(events, incidents, 0)
	s.Start(context.Background())
	s.EventLogged(models.AgentEvent{ID: "x"})
	s.EventLogged(models.AgentEvent{ID: "y"})
	s.Close()

	events.AssertNumberOfCalls(t, "InsertEvent", 2)
	incidents.AssertNotCalled(t, "InsertIncident", mock.Anything, mock.Anything)
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	q := newQueue("test", 4)
	q.start(context.Background())
	q.close()
	assert.False(t, q.enqueue(func(context.Context) error { return nil }))
}

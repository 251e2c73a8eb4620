package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleetfusion/internal/db"
	"github.com/ukydev/fleetfusion/internal/models"
	"github.com/ukydev/fleetfusion/internal/simulator"
)

const writeTimeout = 5 * time.Second

// MongoSink archives agent events and closed incidents. Snapshots are not
// stored.
type MongoSink struct {
	simulator.NopObserver

	events    db.EventCollection
	incidents db.IncidentCollection
	q         *queue
}

// NewMongoSink creates an archive sink. Call Start before use.
func NewMongoSink(events db.EventCollection, incidents db.IncidentCollection, queueSize int) *MongoSink {
	return &MongoSink{events: events, incidents: incidents, q: newQueue("mongo", queueSize)}
}

// Start launches the archive worker.
func (s *MongoSink) Start(ctx context.Context) { s.q.start(ctx) }

// Close flushes queued writes and stops the worker.
func (s *MongoSink) Close() { s.q.close() }

// EventLogged archives ev.
func (s *MongoSink) EventLogged(ev models.AgentEvent) {
	s.q.enqueue(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := s.events.InsertEvent(ctx, ev); err != nil {
			return fmt.Errorf("archive event %s: %w", ev.ID, err)
		}
		return nil
	})
}

// IncidentClosed archives rec.
func (s *MongoSink) IncidentClosed(rec models.IncidentRecord) {
	s.q.enqueue(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := s.incidents.InsertIncident(ctx, rec); err != nil {
			return fmt.Errorf("archive incident for %s: %w", rec.TruckID, err)
		}
		return nil
	})
}

package db

import (
	"context"

	"github.com/ukydev/fleetfusion/internal/models"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventCollection defines the archive operations for agent events.
type EventCollection interface {
	InsertEvent(ctx context.Context, ev models.AgentEvent) error
	FindEvents(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
}

// IncidentCollection defines the archive operations for closed incidents.
type IncidentCollection interface {
	InsertIncident(ctx context.Context, rec models.IncidentRecord) error
}

// Cursor defines the interface for cursor operations.
type Cursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}

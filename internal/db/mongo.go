package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleetfusion/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the archive.
const (
	EventsCollection    = "agent_events"
	IncidentsCollection = "incidents"
)

// ConnectMongo connects to MongoDB at uri and pings it.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoCollection wraps a MongoDB collection for archive operations.
type MongoCollection struct {
	Collection *mongo.Collection
}

// NewArchive returns the event and incident collections of database dbName.
func NewArchive(client *mongo.Client, dbName string) (events, incidents *MongoCollection) {
	database := client.Database(dbName)
	return &MongoCollection{Collection: database.Collection(EventsCollection)},
		&MongoCollection{Collection: database.Collection(IncidentsCollection)}
}

// InsertEvent appends an agent event.
func (c *MongoCollection) InsertEvent(ctx context.Context, ev models.AgentEvent) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, ev)
	return err
}

// InsertIncident appends a closed incident record.
func (c *MongoCollection) InsertIncident(ctx context.Context, rec models.IncidentRecord) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, rec)
	return err
}

type mongoCursor struct {
	cursor *mongo.Cursor
}

// All retrieves all results from the cursor.
func (m *mongoCursor) All(ctx context.Context, out interface{}) error {
	return m.cursor.All(ctx, out)
}

// Close closes the cursor.
func (m *mongoCursor) Close(ctx context.Context) error {
	return m.cursor.Close(ctx)
}

// FindEvents queries archived events, newest first unless opts set a sort.
func (c *MongoCollection) FindEvents(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	if len(opts) == 0 {
		opts = append(opts, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cursor: cursor}, nil
}

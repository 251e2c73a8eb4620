package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ukydev/fleetfusion/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	if err == nil {
		t.Error("expected error for bad URI, got nil")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestNilCollection(t *testing.T) {
	coll := &MongoCollection{Collection: nil}
	ctx := context.Background()

	if err := coll.InsertEvent(ctx, models.AgentEvent{}); err == nil {
		t.Error("expected error inserting event when collection is nil")
	}
	if err := coll.InsertIncident(ctx, models.IncidentRecord{}); err == nil {
		t.Error("expected error inserting incident when collection is nil")
	}
	if _, err := coll.FindEvents(ctx, bson.M{}); err == nil {
		t.Error("expected error finding events when collection is nil")
	}
}

// Integration test (requires running MongoDB)
func TestArchive_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "fleetfusion_test"
	}
	events, incidents := NewArchive(client, dbName)
	defer events.Collection.Drop(context.Background())
	defer incidents.Collection.Drop(context.Background())

	now := time.Now().UTC().Truncate(time.Millisecond)
	older := models.NewAgentEvent(now, models.EventSystem, models.SeverityInfo, "older")
	newer := models.NewAgentEvent(now.Add(time.Second), models.EventAlert, models.SeverityCritical, "newer")
	for _, ev := range []models.AgentEvent{older, newer} {
		if err := events.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("expected insert to succeed, got error: %v", err)
		}
	}

	cursor, err := events.FindEvents(ctx, bson.M{})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	defer cursor.Close(ctx)
	var got []models.AgentEvent
	if err := cursor.All(ctx, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID {
		t.Errorf("expected newest event first, got %+v", got)
	}

	rec := models.IncidentRecord{TruckID: "TRK-402", Outcome: models.OutcomeExecuted, NetSavings: 1700, ClosedAt: now}
	if err := incidents.InsertIncident(ctx, rec); err != nil {
		t.Errorf("expected incident insert to succeed, got error: %v", err)
	}
}

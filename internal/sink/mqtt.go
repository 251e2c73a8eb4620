package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/models"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT dials broker and waits for the connection.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}

// MQTTSink publishes events to {prefix}/events, incident records to
// {prefix}/incidents and the latest snapshot, retained, to {prefix}/snapshot.
type MQTTSink struct {
	pub    Publisher
	prefix string
	q      *queue
}

// NewMQTTSink creates a sink publishing through pub. Call Start before use.
func NewMQTTSink(pub Publisher, prefix string, queueSize int) *MQTTSink {
	return &MQTTSink{pub: pub, prefix: prefix, q: newQueue("mqtt", queueSize)}
}

// Start launches the publishing worker.
func (s *MQTTSink) Start(ctx context.Context) { s.q.start(ctx) }

// Close flushes queued messages and stops the worker.
func (s *MQTTSink) Close() { s.q.close() }

// EventLogged publishes ev.
func (s *MQTTSink) EventLogged(ev models.AgentEvent) {
	s.enqueue("events", false, ev)
}

// SnapshotChanged publishes snap as the retained fleet state.
func (s *MQTTSink) SnapshotChanged(snap models.Snapshot) {
	s.enqueue("snapshot", true, snap)
}

// IncidentClosed publishes rec.
func (s *MQTTSink) IncidentClosed(rec models.IncidentRecord) {
	s.enqueue("incidents", false, rec)
}

func (s *MQTTSink) enqueue(suffix string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithField("topic", suffix).Error("Failed to encode MQTT payload")
		return
	}
	topic := s.prefix + "/" + suffix
	s.q.enqueue(func(context.Context) error {
		token := s.pub.Publish(topic, 1, retained, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	})
}

// Package kafka streams incident timeline events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	writeTimeout  = 10 * time.Second
	schemaVersion = "1"
)

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON value written for every incident event.
type Message struct {
	IncidentID  string                   `json:"incidentId"`
	OrgID       string                   `json:"orgId"`
	Status      domain.IncidentStatus    `json:"status"`
	Severity    domain.Severity          `json:"severity"`
	RuleID      *string                  `json:"ruleId,omitempty"`
	Fingerprint *string                  `json:"fingerprint,omitempty"`
	EventID     string                   `json:"eventId"`
	EventType   domain.IncidentEventType `json:"eventType"`
	Message     string                   `json:"message"`
	Actor       *string                  `json:"actor,omitempty"`
	Metadata    map[string]any           `json:"metadata,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
}

// Publisher writes incident events keyed by incident ID, so events of one incident stay ordered.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher creates a publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("brokers cannot be empty")
	}
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Publisher{writer: writer, topic: topic}, nil
}

// Publish writes one event synchronously.
func (p *Publisher) Publish(ctx context.Context, incident *domain.Incident, event *domain.IncidentEvent) error {
	value, err := json.Marshal(Message{
		IncidentID:  incident.ID,
		OrgID:       incident.OrgID,
		Status:      incident.Status,
		Severity:    incident.Severity,
		RuleID:      incident.RuleID,
		Fingerprint: incident.Fingerprint,
		EventID:     event.ID,
		EventType:   event.Type,
		Message:     event.Message,
		Actor:       event.Actor,
		Metadata:    event.Metadata,
		CreatedAt:   event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal incident event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(incident.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(schemaVersion)},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "org_id", Value: []byte(incident.OrgID)},
		},
		Time: event.CreatedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

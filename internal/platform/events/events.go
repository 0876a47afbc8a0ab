// Package events publishes domain lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Event types emitted by the domain services.
const (
	AppointmentCreated     = "appointment.created"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentStatus      = "appointment.status_changed"
	AppointmentCancelled   = "appointment.cancelled"
	ExaminationCreated     = "examination.created"
	ExaminationStatus      = "examination.status_changed"
	LabTestRequested       = "labtest.requested"
	LabTestCompleted       = "labtest.completed"
	PatientAdmitted        = "ward.patient_admitted"
	PatientDischarged      = "ward.patient_discharged"
	EmergencyVisitRecorded = "patient.emergency_visit"
)

// Event is the envelope written as the message value.
type Event struct {
	ID          uuid.UUID `json:"event_id"`
	Type        string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Payload     any       `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType, aggregateID string, payload any) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// KafkaPublisher writes events keyed by aggregate id so one aggregate's
// events stay ordered on a partition.
type KafkaPublisher struct {
	w      *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		logger: logger.With().Str("component", "events").Str("topic", topic).Logger(),
	}
	// Async keeps a slow or unreachable broker off the request path; delivery
	// failures surface through logCompletion and Close flushes what is queued.
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             p.logCompletion,
	}
	return p
}

// Publish queues evt for delivery. Only encoding errors are returned.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := Message(ctx, evt)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", evt.Type, err)
	}
	p.logger.Debug().Str("event_type", evt.Type).Str("aggregate_id", evt.AggregateID).Msg("event queued")
	return nil
}

func (p *KafkaPublisher) logCompletion(msgs []kafka.Message, err error) {
	if err == nil {
		p.logger.Debug().Int("count", len(msgs)).Msg("events delivered")
		return
	}
	for _, m := range msgs {
		p.logger.Error().Err(err).
			Str("event_type", headerValue(m, "event_type")).
			Str("event_id", headerValue(m, "event_id")).
			Str("aggregate_id", string(m.Key)).
			Msg("event delivery failed")
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// Message encodes evt with event_id/event_type headers and the W3C trace
// context of ctx.
func Message(ctx context.Context, evt Event) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", evt.Type, err)
	}
	carrier := &headerCarrier{headers: []kafka.Header{
		{Key: "event_id", Value: []byte(evt.ID.String())},
		{Key: "event_type", Value: []byte(evt.Type)},
	}}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return kafka.Message{
		Key:     []byte(evt.AggregateID),
		Value:   value,
		Headers: carrier.headers,
		Time:    evt.OccurredAt,
	}, nil
}

type headerCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error { return nil }

// Memory records events in process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, evt Event) error {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Types returns the recorded event types in publish order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

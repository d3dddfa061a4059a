// Package bus carries pipeline and incident events over NATS.
package bus

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/nadmax/pipepulse/internal/ledger"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

const DefaultSubject = "pipepulse.events"

type EventType string

const (
	PipelineCompleted EventType = "pipeline_completed"
	IncidentDetected  EventType = "incident_detected"
	IncidentResolved  EventType = "incident_resolved"
)

// Event is the envelope for every message on the subject. Only the fields
// relevant to Type are set.
type Event struct {
	Type        EventType             `json:"type"`
	ProjectID   int64                 `json:"project_id"`
	ProjectName string                `json:"project_name,omitempty"`
	Pipeline    *telemetry.Pipeline   `json:"pipeline,omitempty"`
	Jobs        []telemetry.Job       `json:"jobs,omitempty"`
	Incident    *ledger.IncidentInput `json:"incident,omitempty"`
	IncidentID  string                `json:"incident_id,omitempty"`
	RootCause   string                `json:"root_cause,omitempty"`
}

func Decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("failed to decode event: missing type")
	}

	return evt, nil
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url, nats.Name("pipepulse-worker"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		if err := s.Conn.Drain(); err != nil {
			log.Printf("failed to drain NATS connection: %v", err)
		}
		s.Conn.Close()
	}
}

// Subscribe decodes every message on subject and hands it to handler.
// Malformed messages are logged and dropped.
func (s *Subscriber) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		evt, err := Decode(msg.Data)
		if err != nil {
			log.Printf("Dropping message on %s: %v", msg.Subject, err)
			return
		}
		handler(evt)
	})
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("pipepulse-server"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		if err := p.Conn.Drain(); err != nil {
			log.Printf("failed to drain NATS connection: %v", err)
		}
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return p.Conn.Publish(subject, data)
}

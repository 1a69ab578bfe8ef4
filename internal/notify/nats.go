package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/events"
)

// Publisher pushes detection events to interested consumers.
type Publisher interface {
	PublishEvent(ev events.Event) error
}

// NATSPublisher publishes events as JSON on a fixed subject. Subjects are
// suffixed with the camera id so consumers can subscribe per camera
// (e.g. "vision.events.front-door").
type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	if subject == "" {
		subject = "vision.events"
	}
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
	}
}

func (p *NATSPublisher) PublishEvent(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	subject := p.subject + "." + ev.CameraID

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, data)
		if err == nil {
			return nil
		}

		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

// NopPublisher is used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(events.Event) error { return nil }

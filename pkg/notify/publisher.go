package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cropadviser/pkg/domain"
)

const exchangeName = "cropadviser.events"

// Publisher emits domain events for downstream consumers (SMS/email relays,
// the notification panel). Delivery is best effort: a broker outage must not
// fail the request that triggered the event.
type Publisher interface {
	AppointmentChanged(ctx context.Context, a domain.Appointment) error
}

// AMQPPublisher publishes appointment events to a topic exchange with
// routing keys of the form "appointment.<status>".
type AMQPPublisher struct {
	mu      sync.Mutex
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.channel = channel
	return nil
}

// AppointmentChanged publishes the appointment with its current status. The
// connection is re-established once on failure before giving up.
func (p *AMQPPublisher) AppointmentChanged(ctx context.Context, a domain.Appointment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	routingKey := "appointment." + string(a.Status)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.publish(ctx, routingKey, body); err != nil {
		slog.Warn("amqp publish failed, reconnecting", "routing_key", routingKey, "err", err)
		if rcErr := p.connect(); rcErr != nil {
			return rcErr
		}
		return p.publish(ctx, routingKey, body)
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("amqp channel not open")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) AppointmentChanged(context.Context, domain.Appointment) error { return nil }

// MemoryPublisher records events for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	Events []domain.Appointment
}

func (m *MemoryPublisher) AppointmentChanged(_ context.Context, a domain.Appointment) error {
	m.mu.Lock()
	m.Events = append(m.Events, a)
	m.mu.Unlock()
	return nil
}

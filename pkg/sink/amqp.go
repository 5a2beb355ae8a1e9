package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/roadguard/go-roadguard/pkg/trip"
)

// DefaultRoutingKey is used when no routing key is configured.
const DefaultRoutingKey = "roadguard.events"

// Publisher is the part of *amqp.Channel the AMQP sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes events as persistent JSON messages.
type AMQP struct {
	pub        Publisher
	exchange   string
	routingKey string
}

// NewAMQP creates a sink publishing on pub. A routing key of "" uses
// DefaultRoutingKey.
func NewAMQP(pub Publisher, exchange, routingKey string) *AMQP {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &AMQP{pub: pub, exchange: exchange, routingKey: routingKey}
}

// DialAMQP connects to url and opens a channel for publishing. The
// returned close function releases both.
func DialAMQP(url, exchange, routingKey string) (*AMQP, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	closeFn := func() error {
		ch.Close()
		return conn.Close()
	}
	return NewAMQP(ch, exchange, routingKey), closeFn, nil
}

// Emit implements Sink.
func (a *AMQP) Emit(ctx context.Context, ev trip.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sink: marshal event: %w", err)
	}

	return a.pub.PublishWithContext(ctx,
		a.exchange,
		a.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"x-severity":  string(ev.Severity),
				"x-condition": ev.Condition,
			},
		},
	)
}

// Name implements Named.
func (a *AMQP) Name() string {
	return "amqp"
}

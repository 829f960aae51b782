// Package publisher forwards selected bus events to a RabbitMQ exchange.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"airwatch/internal/eventbus"
	"airwatch/pkg/logx"
)

// DefaultEvents are forwarded when Config.Events is empty.
var DefaultEvents = []string{eventbus.CatalogResynced, eventbus.ReleaseDelivered, eventbus.ReleaseAnomaly}

type Config struct {
	URL      string
	Exchange string
	Events   []string
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "airwatch.events"
	}
	if len(c.Events) == 0 {
		c.Events = DefaultEvents
	}
	return c
}

// Channel is the part of *amqp.Channel the forwarder uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQ struct {
	cfg Config
	bus eventbus.Bus
	log logx.Logger
}

func NewRabbitMQ(cfg Config, bus eventbus.Bus, log logx.Logger) *RabbitMQ {
	return &RabbitMQ{cfg: cfg.withDefaults(), bus: bus, log: log}
}

// Run connects, declares the exchange and forwards events until ctx ends or
// the connection drops. A dropped connection is returned as an error so the
// caller's supervisor restarts it.
func (r *RabbitMQ) Run(ctx context.Context) error {
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(r.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	r.log.Info("connected to rabbitmq", logx.String("exchange", r.cfg.Exchange))

	events, unsubscribe := r.bus.Subscribe(64, r.cfg.Events...)
	defer unsubscribe()
	return r.forward(ctx, ch, events, closed)
}

func (r *RabbitMQ) forward(ctx context.Context, ch Channel, events <-chan eventbus.Event, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("rabbitmq connection closed")
			}
			return fmt.Errorf("rabbitmq connection closed: %w", amqpErr)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.publish(ctx, ch, ev); err != nil {
				r.log.Warn("event not forwarded", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

func (r *RabbitMQ) publish(ctx context.Context, ch Channel, ev eventbus.Event) error {
	msg, err := message(ev)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ch.PublishWithContext(pctx, r.cfg.Exchange, ev.Type, false, false, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	r.log.Debug("event forwarded", logx.String("type", ev.Type))
	return nil
}

// message encodes ev as a persistent JSON publishing routed by its type.
func message(ev eventbus.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         ev.Type,
		Body:         body,
		Timestamp:    ts,
	}, nil
}

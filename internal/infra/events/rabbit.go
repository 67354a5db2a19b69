package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"zkrent/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type RabbitConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

// RabbitPublisher sends decision events to a durable direct exchange.
type RabbitPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         publishChannel
	exchange   string
	routingKey string
	now        func() time.Time
}

func NewRabbitPublisher(cfg RabbitConfig) (*RabbitPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		now:        time.Now,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg RabbitConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if cfg.Queue == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

func (r *RabbitPublisher) PublishDecision(ctx context.Context, event domain.DecisionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         event.Type,
		MessageId:    event.RenterID + ":" + event.DecidedAt.UTC().Format(time.RFC3339Nano),
		Body:         body,
		Timestamp:    r.now(),
		DeliveryMode: amqp.Persistent,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (r *RabbitPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.ch.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}

// LogPublisher records events in the service log when no broker is configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) PublishDecision(_ context.Context, event domain.DecisionEvent) error {
	p.Logger.Info().
		Str("event", event.Type).
		Str("renter_id", event.RenterID).
		Str("status", string(event.Status)).
		Strs("reasons", event.Reasons).
		Msg("decision event")
	return nil
}

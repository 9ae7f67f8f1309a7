// Package events publishes pipeline events to RabbitMQ for dashboard
// consumers (conversation list refresh, metrics).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// MessageProcessed is emitted after the pipeline finishes one inbound message.
type MessageProcessed struct {
	BuildingID     string    `json:"buildingId"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	Intent         string    `json:"intent"`
	Priority       string    `json:"priority"`
	TicketCreated  bool      `json:"ticketCreated"`
	ProcessedAt    time.Time `json:"processedAt"`
}

// Publisher pushes events onto a durable queue. Publishing is optional: with
// no broker URL configured the publisher is disabled and every call is a
// no-op.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	enabled bool
}

// NewPublisher connects to RabbitMQ. An empty URL disables publishing; a
// failed connection is logged and also disables it rather than failing
// startup, the pipeline works without the broker.
func NewPublisher(url, queue string) *Publisher {
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set. Event publishing disabled.")
		return &Publisher{enabled: false}
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ, event publishing disabled")
		return &Publisher{enabled: false}
	}
	channel, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Could not open RabbitMQ channel, event publishing disabled")
		return &Publisher{enabled: false}
	}

	log.Info().Str("queue", queue).Msg("RabbitMQ connection established")
	return &Publisher{conn: conn, channel: channel, queue: queue, enabled: true}
}

// PublishMessageProcessed emits one event. Failures are returned for logging
// only; the caller never fails the pipeline on them.
func (p *Publisher) PublishMessageProcessed(event MessageProcessed) error {
	if !p.enabled {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	// Declare is idempotent.
	if _, err := p.channel.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare queue %s: %w", p.queue, err)
	}

	err = p.channel.Publish("", p.queue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        data,
	})
	if err != nil {
		return fmt.Errorf("could not publish to queue %s: %w", p.queue, err)
	}

	log.Debug().Str("queue", p.queue).Str("messageID", event.MessageID).Msg("Published message.processed event")
	return nil
}

// Close shuts down the broker connection.
func (p *Publisher) Close() {
	if !p.enabled {
		return
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

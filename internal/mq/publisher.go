package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobScheduled MessageType = "job.scheduled"
	MessageTypeJobFinished  MessageType = "job.finished"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// JobScheduledPayload — payload события о новом job.
type JobScheduledPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// JobFinishedPayload — payload события о завершённом job.
type JobFinishedPayload struct {
	JobID uuid.UUID `json:"job_id"`

	// Status — терминальный статус: OK, FAILED или CANCELLED.
	Status string `json:"status"`
}

// Publisher публикует события жизненного цикла jobs в RabbitMQ.
//
// Публикация best-effort: очередь лишь ускоряет реакцию воркеров,
// источником истины остаётся база. Вызывающий логирует ошибку
// и продолжает работу.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJobScheduled публикует событие о создании job.
// Потребитель: Worker (пробуждение вне очередного опроса).
func (p *Publisher) PublishJobScheduled(ctx context.Context, jobID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobScheduled,
		Payload:   JobScheduledPayload{JobID: jobID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeyJobScheduled, msg)
}

// PublishJobFinished публикует событие о завершении job.
// Потребители: внешние подписчики.
func (p *Publisher) PublishJobFinished(ctx context.Context, jobID uuid.UUID, status string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobFinished,
		Payload:   JobFinishedPayload{JobID: jobID, Status: status},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeyJobFinished, msg)
}

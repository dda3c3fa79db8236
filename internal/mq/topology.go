package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeJobs — topic-обменник событий жизненного цикла jobs.
	ExchangeJobs Exchange = "conveyor.jobs"

	// ExchangeDLQ — обменник для недоставленных сообщений.
	ExchangeDLQ Exchange = "conveyor.dlq"
)

// Queues — имена очередей.
const (
	// QueueWorkerNudge — будит воркеров при появлении нового job.
	// Потеря сообщения не фатальна: воркер опрашивает базу по таймеру.
	QueueWorkerNudge Queue = "conveyor.worker.nudge"

	// QueueDLQJobs — сообщения, которые не удалось обработать.
	QueueDLQJobs Queue = "conveyor.dlq.jobs"
)

// Routing keys.
const (
	// RoutingKeyJobScheduled — создан новый job, ожидающий воркера.
	RoutingKeyJobScheduled RoutingKey = "job.scheduled"

	// RoutingKeyJobFinished — job достиг терминального статуса.
	// Постоянной очереди нет: внешние подписчики привязывают свои.
	RoutingKeyJobFinished RoutingKey = "job.finished"

	// RoutingKeyDLQJobs — ключ маршрутизации DLQ.
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// SetupTopology декларирует обменники, очереди и привязки.
// Операция идемпотентна: каждый компонент вызывает её при старте.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueWorkerNudge, dlqArgs},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueWorkerNudge, RoutingKeyJobScheduled, ExchangeJobs},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.jobs (topic)
    ├── conveyor.worker.nudge [binding: job.scheduled]
    │       Consumer: Worker
    │       DLQ: conveyor.dlq.jobs
    └── job.finished — постоянной очереди нет, подписчики привязывают свои

    conveyor.dlq (direct)
    └── conveyor.dlq.jobs [routing: jobs]
            Manual processing
  `
}

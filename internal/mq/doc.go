// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - job.scheduled — создан новый job, ожидающий воркера
//   - job.finished  — job достиг терминального статуса
//
// Exchanges:
//   - conveyor.jobs — события жизненного цикла jobs (topic)
//   - conveyor.dlq  — dead letter queue
//
// Очередь — лишь сигнал для ускорения реакции: источником истины о jobs
// всегда остаётся база данных, воркеры опрашивают её независимо от очереди.
package mq

// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//
// Все сервисы используют единый формат логирования; Prometheus-метрики
// объявляются в бинарях и экспортируются на /metrics endpoint.
package telemetry

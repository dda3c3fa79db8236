// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (репозитории, publisher, codec, реестр процессоров)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, auth по токену сессии)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - task_handler.go     — обработчики для /tasks
//   - job_handler.go      — обработчики для /jobs
//   - variable_handler.go — обработчики для /variables
//   - session_handler.go  — обработчики для /sessions
//   - schedule_handler.go — обработчики для /schedules
//
// API предоставляет REST endpoints для управления tasks, jobs,
// глобальными переменными, сессиями и schedules. Значения переменных
// шифруются при записи и наружу не отдаются.
package api

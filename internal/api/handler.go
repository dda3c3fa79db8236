package api

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/processor"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secret"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	taskRepo     *repo.TaskRepo
	jobRepo      *repo.JobRepo
	variableRepo *repo.VariableRepo
	sessionRepo  *repo.SessionRepo
	scheduleRepo *repo.ScheduleRepo
	publisher    *mq.Publisher
	codec        *secret.Codec
	registry     *processor.Registry
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	TaskRepo     *repo.TaskRepo
	JobRepo      *repo.JobRepo
	VariableRepo *repo.VariableRepo
	SessionRepo  *repo.SessionRepo
	ScheduleRepo *repo.ScheduleRepo
	Publisher    *mq.Publisher
	Codec        *secret.Codec
	Registry     *processor.Registry
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
// Нулевой Registry заменяется реестром со всеми встроенными процессорами.
func NewHandler(cfg Config) *Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = processor.DefaultRegistry()
	}
	return &Handler{
		taskRepo:     cfg.TaskRepo,
		jobRepo:      cfg.JobRepo,
		variableRepo: cfg.VariableRepo,
		sessionRepo:  cfg.SessionRepo,
		scheduleRepo: cfg.ScheduleRepo,
		publisher:    cfg.Publisher,
		codec:        cfg.Codec,
		registry:     registry,
		logger:       cfg.Logger,
	}
}

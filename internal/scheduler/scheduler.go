package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/secret"
)

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	scheduleRepo *repo.ScheduleRepo
	taskRepo     *repo.TaskRepo
	jobRepo      *repo.JobRepo
	publisher    *mq.Publisher
	codec        *secret.Codec
	logger       *slog.Logger
	batchSize    int
	onJobCreated func()
}

// Config — конфигурация Scheduler.
type Config struct {
	ScheduleRepo *repo.ScheduleRepo
	TaskRepo     *repo.TaskRepo
	JobRepo      *repo.JobRepo
	Publisher    *mq.Publisher
	Codec        *secret.Codec
	Logger       *slog.Logger
	BatchSize    int // количество schedules за один тик (default: 100)

	// OnJobCreated вызывается после успешного создания job.
	// Используется бинарём для метрик.
	OnJobCreated func()
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Scheduler{
		scheduleRepo: cfg.ScheduleRepo,
		taskRepo:     cfg.TaskRepo,
		jobRepo:      cfg.JobRepo,
		publisher:    cfg.Publisher,
		codec:        cfg.Codec,
		logger:       cfg.Logger,
		batchSize:    batchSize,
		onJobCreated: cfg.OnJobCreated,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule создаёт job из его task
// 3. Обновляет next_due_at
// 4. Публикует job.scheduled в RabbitMQ
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	// 1. Находим due schedules
	schedules, err := s.scheduleRepo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	// 2. Обрабатываем каждый schedule
	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		jobCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if jobCreated {
			created++
			if s.onJobCreated != nil {
				s.onJobCreated()
			}
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"jobs_created", created,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если job был создан (не оказался дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	if sched.NextDueAt == nil {
		return false, nil
	}

	// 1. Проверяем, что task существует
	task, err := s.taskRepo.GetByID(ctx, sched.TaskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("task not found for schedule, skipping",
				"schedule_id", sched.ID,
				"task_id", sched.TaskID,
			)
			// Не возвращаем ошибку — просто пропускаем
			return false, nil
		}
		return false, fmt.Errorf("get task: %w", err)
	}

	// 2. Формируем idempotency key: "{schedule_id}_{next_due_at_unix}"
	// Это гарантирует, что для одного schedule и конкретного времени
	// будет создан только один job
	idempKey := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	// 3. Проверяем, не создан ли уже job (idempotency)
	existing, err := s.jobRepo.GetByIdempotencyKey(ctx, sched.TaskID, idempKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	var jobCreated bool
	var jobID uuid.UUID

	if existing != nil {
		// Job уже существует — просто обновляем next_due_at
		s.logger.Debug("job already exists (idempotency)",
			"schedule_id", sched.ID,
			"job_id", existing.ID,
			"idempotency_key", idempKey,
		)
		jobID = existing.ID
	} else {
		// 4. Создаём job из task с переменными и привилегиями расписания
		job, vars, err := engine.InstantiateTask(task, engine.JobInput{
			Variables:      sched.Variables,
			Privileges:     sched.Privileges,
			IdempotencyKey: &idempKey,
		}, s.codec)
		if err != nil {
			// Task изменился и больше не принимает переменные расписания.
			// Сдвигаем next_due_at, иначе schedule будет падать каждый тик.
			s.logger.Error("failed to instantiate task from schedule",
				"schedule_id", sched.ID,
				"task_id", sched.TaskID,
				"error", err,
			)
			return false, s.advance(ctx, sched, now)
		}

		if err := s.jobRepo.Create(ctx, job, vars); err != nil {
			if errors.Is(err, repo.ErrAlreadyExists) {
				// Гонка с другим экземпляром планировщика: job уже создан,
				// победитель сам сдвинет next_due_at
				s.logger.Debug("job already created concurrently",
					"schedule_id", sched.ID,
					"idempotency_key", idempKey,
				)
				return false, nil
			}
			return false, fmt.Errorf("create job: %w", err)
		}

		s.logger.Info("created job from schedule",
			"job_id", job.ID,
			"job_name", job.Name,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"task_id", sched.TaskID,
		)

		jobID = job.ID
		jobCreated = true
	}

	// 5. Вычисляем следующее время выполнения
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due",
			"schedule_id", sched.ID,
			"error", err,
		)
		// Schedule некорректный — лучше не трогать next_due_at
		return jobCreated, nil
	}

	// 6. Обновляем schedule
	sched.RecordRun(jobID, nextDue)
	if err := s.scheduleRepo.Update(ctx, sched); err != nil {
		return jobCreated, fmt.Errorf("update schedule: %w", err)
	}

	// 7. Будим воркеров через RabbitMQ (если publisher настроен и job создан)
	if s.publisher != nil && jobCreated {
		if err := s.publisher.PublishJobScheduled(ctx, jobID); err != nil {
			// Не фатальная ошибка — job уже создан в БД,
			// воркер заберёт его через polling
			s.logger.Warn("failed to publish job.scheduled",
				"job_id", jobID,
				"error", err,
			)
		}
	}

	return jobCreated, nil
}

// advance сдвигает next_due_at без создания job.
func (s *Scheduler) advance(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return nil
	}

	sched.NextDueAt = &nextDue
	sched.UpdatedAt = time.Now()
	if err := s.scheduleRepo.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/processor"
	"github.com/shaiso/Conveyor/internal/secret"
)

// Default configuration values.
const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 10
	defaultPrefetch     = 1
	defaultStaleAfter   = 30 * time.Minute
	reapInterval        = time.Minute
)

// Worker выполняет jobs.
//
// Worker — stateless компонент системы, который:
//   - Получает уведомления о новых jobs из очереди RabbitMQ (event-driven)
//   - Периодически проверяет SCHEDULED jobs в БД (polling fallback)
//   - Захватывает job атомарным CAS-переходом SCHEDULED → PENDING
//   - Выполняет шаги строго последовательно через реестр процессоров
//   - Финализирует статус job как агрегат статусов шагов
//   - Закрывает jobs, зависшие после падения другого воркера
//
// Workers масштабируются горизонтально — несколько экземпляров работают
// с одной базой, эксклюзивность выполнения гарантирует захват.
type Worker struct {
	// Stores
	jobs    JobStore
	globals GlobalStore

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Execution
	registry *processor.Registry
	codec    *secret.Codec

	// Consumer
	consumer *mq.Consumer

	// Configuration
	pollInterval  time.Duration
	batchSize     int
	staleAfter    time.Duration
	stepTimeout   time.Duration
	workspaceRoot string

	// Hooks
	onJobFinished func(status domain.JobStatus)

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Stores
	Jobs    JobStore
	Globals GlobalStore

	// MQ (опционально; без соединения воркер работает в polling-режиме)
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Реестр процессоров (опционально; если nil — processor.DefaultRegistry())
	Registry *processor.Registry

	// Кодек значений переменных
	Codec *secret.Codec

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 5s)
	BatchSize    int           // количество кандидатов за один poll (default: 10)

	// StaleAfter — порог, после которого job без heartbeat считается
	// брошенным упавшим воркером (default: 30m). Должен превышать
	// максимальный таймаут одного шага.
	StaleAfter time.Duration

	// StepTimeout — таймаут одного шага.
	// 0 — у каждого вида процессора свой таймаут по умолчанию.
	StepTimeout time.Duration

	// WorkspaceRoot — корень рабочих директорий jobs
	// (default: поддиректория во временной директории ОС).
	WorkspaceRoot string

	// OnJobFinished вызывается после финализации job с терминальным
	// статусом. Используется бинарём для метрик.
	OnJobFinished func(status domain.JobStatus)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	workspaceRoot := cfg.WorkspaceRoot
	if workspaceRoot == "" {
		workspaceRoot = filepath.Join(os.TempDir(), "conveyor", "jobs")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = processor.DefaultRegistry()
	}

	return &Worker{
		jobs:          cfg.Jobs,
		globals:       cfg.Globals,
		publisher:     cfg.Publisher,
		conn:          cfg.Conn,
		registry:      registry,
		codec:         cfg.Codec,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		staleAfter:    staleAfter,
		stepTimeout:   cfg.StepTimeout,
		workspaceRoot: workspaceRoot,
		onJobFinished: cfg.OnJobFinished,
		logger:        logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer очереди job.scheduled (если есть соединение с RabbitMQ)
//   - Polling горутину для fallback
//   - Reaper зависших jobs
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"stale_after", w.staleAfter,
		"workspace_root", w.workspaceRoot,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueWorkerNudge,
			Handler:  w.handleJobScheduled,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("job consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reapLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и дожидается завершения горутин.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем jobs, созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling: пытается захватить и выполнить
// каждого SCHEDULED кандидата. Проигранный захват — не ошибка,
// job достался другому воркеру.
func (w *Worker) poll(ctx context.Context) {
	candidates, err := w.jobs.ListScheduled(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list scheduled jobs", "error", err)
		return
	}

	if len(candidates) == 0 {
		return
	}

	w.logger.Debug("poll found scheduled jobs", "count", len(candidates))

	for i := range candidates {
		if ctx.Err() != nil {
			return
		}

		job := &candidates[i]
		if err := w.processJob(ctx, job.ID); err != nil {
			if errors.Is(err, ErrJobNotClaimed) || errors.Is(err, ErrJobNotFound) {
				continue
			}
			w.logger.Error("failed to process job from poll",
				"job_id", job.ID,
				"error", err,
			)
		}
	}
}

// reapLoop периодически закрывает jobs без heartbeat.
//
// Воркер, упавший посреди выполнения, оставляет job в PENDING/RUNNING
// навсегда; reaper любого живого воркера помечает такой job как FAILED
// после staleAfter. Перезапуска нет: шаги имеют побочные эффекты,
// наполовину выполненный job нельзя безопасно повторить.
func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	w.reap(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reap(ctx)
		}
	}
}

// reap помечает зависшие jobs как FAILED.
func (w *Worker) reap(ctx context.Context) {
	threshold := time.Now().UTC().Add(-w.staleAfter)

	ids, err := w.jobs.FailStale(ctx, threshold)
	if err != nil {
		w.logger.Error("failed to reap stale jobs", "error", err)
		return
	}

	for _, id := range ids {
		w.logger.Warn("stale job failed", "job_id", id, "stale_after", w.staleAfter)
		w.publishFinished(ctx, id, domain.JobStatusFailed)
	}
}

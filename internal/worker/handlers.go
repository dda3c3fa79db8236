package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// handleJobScheduled обрабатывает событие о новом job из очереди nudge.
func (w *Worker) handleJobScheduled(ctx context.Context, delivery *mq.Delivery) error {
	// Парсим payload
	payload, err := mq.ParsePayload[mq.JobScheduledPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse job.scheduled payload", "error", err)
		return err
	}

	w.logger.Debug("received job.scheduled event", "job_id", payload.JobID)

	// Обрабатываем job
	if err := w.processJob(ctx, payload.JobID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotClaimed) {
			w.logger.Debug("job not processed", "job_id", payload.JobID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process job", "job_id", payload.JobID, "error", err)
		return err
	}

	return nil
}

// processJob захватывает job, выполняет шаги и финализирует статус.
//
// Возвращаемая ошибка (кроме ErrJobNotClaimed и ErrJobNotFound) означает
// инфраструктурный сбой: job остаётся захваченным в БД, при затяжном
// сбое его закроет reaper.
func (w *Worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	// 1. Захват: CAS SCHEDULED → PENDING. Проигравший молча уходит.
	if err := w.jobs.Claim(ctx, jobID); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return fmt.Errorf("%w: %s", ErrJobNotClaimed, jobID)
		}
		return fmt.Errorf("claim job: %w", err)
	}

	// 2. Загружаем job со снимками шагов
	job, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	// 3. Помечаем как running
	if err := w.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("update job to running: %w", err)
	}

	w.logger.Info("job started",
		"job_id", job.ID,
		"name", job.Name,
		"steps", len(job.Steps),
	)

	// 4. Выполняем шаги
	status, err := w.runJob(ctx, job)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	// 5. Финализируем
	if err := w.jobs.UpdateStatus(ctx, job.ID, status); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}

	switch status {
	case domain.JobStatusOK:
		w.logger.Info("job finished", "job_id", job.ID, "status", status)
	default:
		w.logger.Warn("job finished", "job_id", job.ID, "status", status)
	}

	if w.onJobFinished != nil {
		w.onJobFinished(status)
	}

	return w.publishFinished(ctx, job.ID, status)
}

// publishFinished публикует событие job.finished.
//
// Источник истины о статусе — база данных, поэтому неудачная публикация
// только логируется.
func (w *Worker) publishFinished(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	if w.publisher == nil {
		w.logger.Debug("publisher not available, skipping job.finished publish",
			"job_id", jobID,
		)
		return nil
	}

	if err := w.publisher.PublishJobFinished(ctx, jobID, string(status)); err != nil {
		w.logger.Warn("failed to publish job.finished",
			"job_id", jobID,
			"error", err,
		)
	}

	return nil
}

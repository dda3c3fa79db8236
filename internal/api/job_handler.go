package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
)

// ListJobs возвращает список jobs с фильтрацией, новые первыми.
// Шаги в список не входят, см. GetJob.
// GET /api/v1/jobs?task_id=...&status=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := repo.JobFilter{}

	if taskIDStr := r.URL.Query().Get("task_id"); taskIDStr != "" {
		taskID, err := uuid.Parse(taskIDStr)
		if err != nil {
			BadRequest(w, "invalid task_id")
			return
		}
		filter.TaskID = &taskID
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.ParseJobStatus(status)
		if filter.Status == "" {
			BadRequest(w, "invalid status")
			return
		}
	}

	filter.Limit = int(mustParseInt(r.URL.Query().Get("limit"), 50))
	filter.Offset = int(mustParseInt(r.URL.Query().Get("offset"), 0))

	jobs, err := h.jobRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i := range jobs {
		result[i] = JobFromDomain(&jobs[i])
	}

	List(w, result, len(result))
}

// CreateJob создаёт job из task.
//
// Значения переменных берутся из запроса, недостающие — из значений
// по умолчанию. Привилегии снимаются с сессии запроса в момент создания.
// Повторный запрос с тем же idempotency_key возвращает существующий job.
// POST /api/v1/tasks/{id}/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.taskRepo.GetByID(r.Context(), taskID)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	if req.IdempotencyKey != "" {
		existing, err := h.jobRepo.GetByIdempotencyKey(r.Context(), taskID, req.IdempotencyKey)
		if err == nil {
			Success(w, JobFromDomain(existing))
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	in := engine.JobInput{
		Variables:  req.Variables,
		Privileges: sessionPrivileges(r),
	}
	if req.IdempotencyKey != "" {
		in.IdempotencyKey = &req.IdempotencyKey
	}

	job, vars, err := engine.InstantiateTask(task, in, h.codec)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			BadRequest(w, verr.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	if err := h.jobRepo.Create(r.Context(), job, vars); err != nil {
		// Гонка по ключу идемпотентности: возвращаем победителя.
		if errors.Is(err, repo.ErrAlreadyExists) && req.IdempotencyKey != "" {
			existing, err := h.jobRepo.GetByIdempotencyKey(r.Context(), taskID, req.IdempotencyKey)
			if err == nil {
				Success(w, JobFromDomain(existing))
				return
			}
		}
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	// Публикуем событие в очередь
	if h.publisher != nil {
		if err := h.publisher.PublishJobScheduled(r.Context(), job.ID); err != nil {
			h.logger.Warn("failed to publish job.scheduled", "job_id", job.ID, "error", err)
		}
	}

	h.logger.Info("job created", "job_id", job.ID, "task_id", taskID, "name", job.Name)
	Created(w, JobFromDomain(job))
}

// GetJob возвращает job по ID вместе с шагами и их выводом.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job))
}

// CancelJob запрашивает отмену job.
//
// Job в статусе SCHEDULED отменяется немедленно. Уже выполняемый job
// получает флаг отмены: воркер увидит его на границе шагов.
// POST /api/v1/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	if job.IsFinished() {
		InvalidState(w, "job is already finished")
		return
	}

	cancelled, err := h.jobRepo.CancelIfScheduled(r.Context(), id)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if !cancelled {
		if err := h.jobRepo.RequestCancel(r.Context(), id); err != nil {
			if HandleRepoError(w, h.logger, err, "job not found") {
				return
			}
			InternalError(w, h.logger, err)
			return
		}
	}

	job, err = h.jobRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	h.logger.Info("job cancel requested", "job_id", id, "immediate", cancelled)
	Success(w, JobFromDomain(job))
}

// sessionPrivileges возвращает привилегии сессии запроса.
// Анонимный запрос не имеет привилегий.
func sessionPrivileges(r *http.Request) []string {
	session := SessionFromContext(r.Context())
	if session == nil {
		return nil
	}
	return session.Privileges
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	var n int64
	if _, err := json.Number(s).Int64(); err == nil {
		n, _ = json.Number(s).Int64()
		return n
	}
	return defaultVal
}

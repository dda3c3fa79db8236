package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
)

// ListTasks возвращает список tasks с фильтрацией.
// GET /api/v1/tasks?search=&label=&limit=&offset=
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if label := q.Get("label"); label != "" && !domain.ValidLabel(label) {
		BadRequest(w, "invalid label")
		return
	}

	filter := repo.TaskFilter{
		Search: q.Get("search"),
		Label:  q.Get("label"),
		Limit:  int(mustParseInt(q.Get("limit"), 50)),
		Offset: int(mustParseInt(q.Get("offset"), 0)),
	}

	tasks, err := h.taskRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i := range tasks {
		result[i] = TaskFromDomain(&tasks[i])
	}

	List(w, result, len(result))
}

// CreateTask создаёт новый task.
//
// Структура проверяется engine, конфигурация каждого шага — реестром
// процессоров. Поведение при занятом имени определяет on_conflict:
// ABORT (по умолчанию) возвращает 409, UPDATE заменяет содержимое.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	onConflict := domain.OnConflictAbort
	if req.OnConflict != "" {
		onConflict = domain.OnConflict(req.OnConflict)
		if !onConflict.Valid() {
			BadRequest(w, "invalid on_conflict: must be ABORT or UPDATE")
			return
		}
	}

	task := req.ToDomain()
	if err := engine.Validate(task); err != nil {
		BadRequest(w, err.Error())
		return
	}
	for i := range task.Steps {
		if err := h.registry.ValidateConfig(task.Steps[i].Processor); err != nil {
			BadRequest(w, fmt.Sprintf("step %q: %s", task.Steps[i].Name, err))
			return
		}
	}

	if err := h.taskRepo.Create(r.Context(), task, onConflict); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("task created", "task_id", task.ID, "name", task.Name)
	Created(w, TaskFromDomain(task))
}

// GetTask возвращает task по ID вместе с переменными и шагами.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.taskRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(task))
}

// DeleteTask удаляет task вместе с переменными, шагами и расписаниями.
// Существующие jobs сохраняются, теряя ссылку на task.
// DELETE /api/v1/tasks/{id}
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	if err := h.taskRepo.Delete(r.Context(), id); err != nil {
		if HandleRepoError(w, h.logger, err, "task not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("task deleted", "task_id", id)
	NoContent(w)
}

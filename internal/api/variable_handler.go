package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ListVariables возвращает ключи глобальных переменных.
// Значения в ответ не попадают.
// GET /api/v1/variables
func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := h.variableRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]GlobalVariableResponse, len(vars))
	for i, v := range vars {
		result[i] = GlobalVariableFromDomain(v)
	}

	List(w, result, len(result))
}

// CreateVariable создаёт глобальную переменную.
//
// Значение шифруется перед сохранением и обратно через API не читается.
// Поведение при занятом ключе определяет on_conflict: ABORT (по умолчанию)
// возвращает 409, UPDATE заменяет значение.
// POST /api/v1/variables
func (h *Handler) CreateVariable(w http.ResponseWriter, r *http.Request) {
	var req CreateVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Key == "" {
		BadRequest(w, "key is required")
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

	encrypted, err := h.codec.Encrypt(req.Value)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	now := time.Now()
	variable := &domain.GlobalVariable{
		Key:       req.Key,
		Value:     encrypted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.variableRepo.Create(r.Context(), variable, onConflict); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("global variable created", "key", variable.Key)
	Created(w, GlobalVariableFromDomain(*variable))
}

// DeleteVariable удаляет глобальную переменную.
// DELETE /api/v1/variables/{key}
func (h *Handler) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		BadRequest(w, "variable key is required")
		return
	}

	if err := h.variableRepo.Delete(r.Context(), key); err != nil {
		if HandleRepoError(w, h.logger, err, "variable not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("global variable deleted", "key", key)
	NoContent(w)
}

// ListVariableAdvertisers возвращает шаги tasks, публикующие переменную.
// Подсказывает, какие tasks перезапишут значение во время выполнения.
// GET /api/v1/variables/{key}/advertisers
func (h *Handler) ListVariableAdvertisers(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		BadRequest(w, "variable key is required")
		return
	}

	advertisers, err := h.taskRepo.ListAdvertisers(r.Context(), key)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AdvertiserResponse, len(advertisers))
	for i, a := range advertisers {
		result[i] = AdvertiserFromRepo(a)
	}

	List(w, result, len(result))
}

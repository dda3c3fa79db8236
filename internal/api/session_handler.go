package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// CreateSession создаёт сессию с набором привилегий.
// Токен возвращается один раз в ответе на создание.
// POST /api/v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := validatePrivileges(req.Privileges); err != nil {
		BadRequest(w, err.Error())
		return
	}

	session := &domain.Session{
		ID:         uuid.New(),
		Token:      uuid.New(),
		Privileges: req.Privileges,
		CreatedAt:  time.Now(),
	}

	if err := h.sessionRepo.Create(r.Context(), session); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("session created", "session_id", session.ID, "privileges", session.Privileges)
	Created(w, SessionWithToken(session))
}

// UpdateSessionPrivileges заменяет привилегии сессии.
//
// Изменение действует только на будущие jobs: уже созданные хранят
// снимок привилегий на момент своего создания.
// PUT /api/v1/sessions/{id}/privileges
func (h *Handler) UpdateSessionPrivileges(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	var req UpdatePrivilegesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := validatePrivileges(req.Privileges); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.sessionRepo.UpdatePrivileges(r.Context(), id, req.Privileges); err != nil {
		if HandleRepoError(w, h.logger, err, "session not found") {
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	session, err := h.sessionRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "session not found") {
		return
	}

	h.logger.Info("session privileges updated", "session_id", id, "privileges", req.Privileges)
	Success(w, SessionFromDomain(session))
}

// GetCurrentSession возвращает сессию, которой аутентифицирован запрос.
// GET /api/v1/sessions/me
func (h *Handler) GetCurrentSession(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		Unauthorized(w, "missing session token")
		return
	}

	Success(w, SessionFromDomain(session))
}

// validatePrivileges проверяет, что все токены привилегий известны.
func validatePrivileges(privileges []string) error {
	for _, p := range privileges {
		if !domain.ValidPrivilege(p) {
			return fmt.Errorf("unknown privilege: %q", p)
		}
	}
	return nil
}

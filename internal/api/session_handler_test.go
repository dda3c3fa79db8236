package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestValidatePrivileges(t *testing.T) {
	valid := []string{domain.PrivilegeShellCommand, domain.PrivilegeSQLQuery, domain.PrivilegeRedisCommand}
	if err := validatePrivileges(valid); err != nil {
		t.Errorf("validatePrivileges(%v) = %v, want nil", valid, err)
	}
	if err := validatePrivileges(nil); err != nil {
		t.Errorf("validatePrivileges(nil) = %v, want nil", err)
	}

	err := validatePrivileges([]string{"root_access"})
	if err == nil {
		t.Fatal("unknown privilege accepted")
	}
	if got := err.Error(); got != `unknown privilege: "root_access"` {
		t.Errorf("error = %q", got)
	}
}

func TestGetCurrentSession_Anonymous(t *testing.T) {
	h := &Handler{}
	rec := httptest.NewRecorder()

	h.GetCurrentSession(rec, httptest.NewRequest("GET", "/api/v1/sessions/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetCurrentSession_WithSession(t *testing.T) {
	session := &domain.Session{
		ID:         uuid.New(),
		Token:      uuid.New(),
		Privileges: []string{domain.PrivilegeShellCommand},
		CreatedAt:  time.Now(),
	}

	req := httptest.NewRequest("GET", "/api/v1/sessions/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), sessionContextKey{}, session))

	h := &Handler{}
	rec := httptest.NewRecorder()
	h.GetCurrentSession(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Data SessionResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Data.ID != session.ID {
		t.Errorf("session id = %s, want %s", body.Data.ID, session.ID)
	}
	if len(body.Data.Privileges) != 1 || body.Data.Privileges[0] != domain.PrivilegeShellCommand {
		t.Errorf("privileges = %v, want [%s]", body.Data.Privileges, domain.PrivilegeShellCommand)
	}
	// Токен выдаётся один раз при создании и не повторяется в me
	if body.Data.Token != uuid.Nil {
		t.Errorf("token echoed in me response: %s", body.Data.Token)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/Conveyor/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]string{"name": "deploy-docs"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Data["name"] != "deploy-docs" {
		t.Errorf("data.name = %q, want %q", body.Data["name"], "deploy-docs")
	}
}

func TestList_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []string{"a", "b"}, 2)

	var body struct {
		Data  []string `json:"data"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.Data) != 2 || body.Total != 2 {
		t.Errorf("got data=%v total=%d, want 2 items total=2", body.Data, body.Total)
	}
}

func TestError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, "task not found")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", body.Error.Code, ErrCodeNotFound)
	}
	if body.Error.Message != "task not found" {
		t.Errorf("error message = %q, want %q", body.Error.Message, "task not found")
	}
}

func TestHandleRepoError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{"not found", repo.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"already exists", repo.ErrAlreadyExists, http.StatusConflict, ErrCodeConflict},
		{"invalid state", repo.ErrInvalidState, http.StatusUnprocessableEntity, ErrCodeInvalidState},
		{"unknown", errors.New("connection refused"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handled := HandleRepoError(rec, discardLogger(), tt.err, "not found")
			if !handled {
				t.Fatal("HandleRepoError() = false, want true")
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleRepoError_Nil(t *testing.T) {
	rec := httptest.NewRecorder()
	if HandleRepoError(rec, discardLogger(), nil, "") {
		t.Error("HandleRepoError(nil) = true, want false")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body written for nil error: %q", rec.Body.String())
	}
}

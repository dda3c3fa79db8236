package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(mw("first"), mw("second"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []string{"first", "second", "handler"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestAuth_NoHeaderPassesAnonymously(t *testing.T) {
	var reached bool
	var session *domain.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		session = SessionFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	Auth(nil, discardLogger())(next).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tasks", nil))

	if !reached {
		t.Fatal("next handler not reached")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if session != nil {
		t.Errorf("session in context = %v, want nil", session)
	}
}

func TestAuth_MalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"not a uuid", "Bearer definitely-not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
			})

			req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			Auth(nil, discardLogger())(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if nextCalled {
				t.Error("next handler called for rejected request")
			}
		})
	}
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)

	if rw.status != http.StatusTeapot {
		t.Errorf("captured status = %d, want %d", rw.status, http.StatusTeapot)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("written status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/auth"
	"github.com/futuravault/futuravault/internal/server/repositories/repomanager"
	"github.com/futuravault/futuravault/internal/server/services"
	"github.com/futuravault/futuravault/internal/storage/registry"
)

const testSecret = "test-secret"

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestServer(t *testing.T, reg *registry.Registry) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repos := repomanager.NewPostgresRepositoryManager()
	selector := services.NewSelector(reg, services.AdapterSet{})
	recorder := services.NewRecorder(db, repos, testLogger())
	cleanup := services.NewCleanupCoordinator(db, repos, selector, testLogger())
	uploads := services.NewUploadService(db, repos, reg, selector, nil, recorder, testLogger())
	memories := services.NewMemoryService(db, repos, reg, recorder, cleanup, testLogger())

	return NewServer(":0", testLogger(), uploads, memories, testSecret), mock
}

func bothBackends() *registry.Registry {
	return registry.New(registry.Config{NeonConfigured: true, ICPConfigured: true, CanisterID: "canister-1"})
}

func authHeader(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken("user-1", []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, bothBackends())

	w := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	s, _ := newTestServer(t, bothBackends())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/intent", strings.NewReader(`{}`))
	w := doRequest(s, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	s, _ := newTestServer(t, bothBackends())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/intent", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer garbage")
	w := doRequest(s, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestUploadIntent(t *testing.T) {
	s, _ := newTestServer(t, bothBackends())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/intent", strings.NewReader(`{"preference": "dual"}`))
	req.Header.Set("Authorization", authHeader(t))
	req.Header.Set("Content-Type", "application/json")

	w := doRequest(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Preference string     `json:"preference"`
		Grants     []grantDTO `json:"grants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Preference != "dual" || len(body.Grants) != 2 {
		t.Fatalf("unexpected selection: %+v", body)
	}
	for _, g := range body.Grants {
		if g.IdempotencyKey == "" || g.ExpiresAt.IsZero() {
			t.Fatalf("grant missing key or expiry: %+v", g)
		}
	}
	if body.Grants[1].Backend != "icp" || body.Grants[1].CanisterID != "canister-1" {
		t.Fatalf("icp grant must carry the canister id: %+v", body.Grants[1])
	}
}

func TestUploadIntent_UnconfiguredBackendConflict(t *testing.T) {
	s, _ := newTestServer(t, registry.New(registry.Config{NeonConfigured: true}))

	req := httptest.NewRequest(http.MethodPost, "/api/upload/intent", strings.NewReader(`{"preference": "icp"}`))
	req.Header.Set("Authorization", authHeader(t))
	req.Header.Set("Content-Type", "application/json")

	w := doRequest(s, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", w.Code)
	}
}

func TestUploadIntent_NoBackendUnavailable(t *testing.T) {
	s, _ := newTestServer(t, registry.New(registry.Config{}))

	req := httptest.NewRequest(http.MethodPost, "/api/upload/intent", strings.NewReader(`{}`))
	req.Header.Set("Authorization", authHeader(t))
	req.Header.Set("Content-Type", "application/json")

	w := doRequest(s, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", w.Code)
	}
}

func TestGetPreference_FallsBackWhenNeverSet(t *testing.T) {
	s, mock := newTestServer(t, bothBackends())
	mock.ExpectQuery("SELECT preference FROM storage_preferences").
		WillReturnRows(sqlmock.NewRows([]string{"preference"}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me/storage-preference", nil)
	req.Header.Set("Authorization", authHeader(t))

	w := doRequest(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["preference"] != "neon" {
		t.Fatalf("want neon fallback, got %q", body["preference"])
	}
}

func TestSetPreference(t *testing.T) {
	s, mock := newTestServer(t, bothBackends())
	mock.ExpectExec("INSERT INTO storage_preferences").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPut, "/api/users/me/storage-preference", strings.NewReader(`{"preference": "dual"}`))
	req.Header.Set("Authorization", authHeader(t))
	req.Header.Set("Content-Type", "application/json")

	w := doRequest(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSetPreference_UnconfiguredBackendConflict(t *testing.T) {
	s, _ := newTestServer(t, registry.New(registry.Config{NeonConfigured: true}))

	req := httptest.NewRequest(http.MethodPut, "/api/users/me/storage-preference", strings.NewReader(`{"preference": "dual"}`))
	req.Header.Set("Authorization", authHeader(t))
	req.Header.Set("Content-Type", "application/json")

	w := doRequest(s, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: common.ErrNotFound, want: http.StatusNotFound},
		{err: common.ErrValidation, want: http.StatusBadRequest},
		{err: common.ErrFileTooLarge, want: http.StatusBadRequest},
		{err: common.ErrChunkCountExceeded, want: http.StatusBadRequest},
		{err: common.ErrGrantExpired, want: http.StatusGone},
		{err: common.ErrIdentityRequired, want: http.StatusUnauthorized},
		{err: common.ErrBackendNotConfigured, want: http.StatusConflict},
		{err: common.ErrNoBackendConfigured, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("%v: want %d, got %d", tt.err, tt.want, got)
		}
	}
}

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/internal/service/ai"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	scenarios := scenario.NewMemoryStore(scenario.Seed())
	sessions := sessionService.NewService(sessionService.Options{
		Scenarios: scenarios,
		History:   repo,
		Responders: func(sc scenario.Scenario) conversation.Responder {
			return ai.NewHeuristicResponder(sc.Questions)
		},
	})
	t.Cleanup(sessions.Close)

	return NewRouter(Dependencies{
		Scenarios:      scenarios,
		Sessions:       sessions,
		Chat:           ai.NewHeuristicResponder(nil),
		History:        repo,
		AllowedOrigins: []string{"http://localhost:5173"},
	}), repo
}

func TestHealthz(t *testing.T) {
	r, repo := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, repo.Close())
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestRoutesMounted(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/api/scenarios", "/api/difficulties", "/api/history"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, "http://localhost:5173", resp.Header().Get("Access-Control-Allow-Origin"))
}

package scenario

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(scenario.NewMemoryStore(scenario.Seed())).RegisterRoutes(r)
	return r
}

func TestListScenarios(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/scenarios", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var got []scenario.Scenario
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != len(scenario.Seed()) {
		t.Fatalf("expected %d scenarios, got %d", len(scenario.Seed()), len(got))
	}
	if got[0].SystemPrompt != "" {
		t.Fatalf("system prompt must not be exposed")
	}
}

func TestGetScenario(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/scenarios/job-interview", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/scenarios/unknown", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListDifficulties(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/difficulties", nil))

	var got []difficultyInfo
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 difficulties, got %d", len(got))
	}
	if got[0].Difficulty != "easy" || got[0].MinDelayMs != 7000 || got[0].MaxDelayMs != 9000 {
		t.Fatalf("unexpected easy band: %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].MaxDelayMs > got[i-1].MinDelayMs {
			t.Fatalf("bands overlap: %+v vs %+v", got[i-1], got[i])
		}
	}
}

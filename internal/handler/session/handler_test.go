package session

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/internal/service/ai"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/internal/store"
)

func setupRouter(t *testing.T) (*chi.Mux, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := sessionService.NewService(sessionService.Options{
		Scenarios: scenario.NewMemoryStore(scenario.Seed()),
		Responders: func(sc scenario.Scenario) conversation.Responder {
			return ai.NewHeuristicResponder(sc.Questions)
		},
		AfterFunc: clk.AfterFunc,
		Now:       clk.Now,
	})
	t.Cleanup(svc.Close)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, clk
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) view {
	t.Helper()
	resp := do(r, http.MethodPost, "/session", `{"scenarioId":"job-interview","difficulty":"easy"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var v view
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return v
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter(t)
	v := createSession(t, r)

	if v.Session.ID == "" {
		t.Fatal("expected session id")
	}
	if len(v.Messages) != 1 {
		t.Fatalf("expected opening line, got %d messages", len(v.Messages))
	}
	if v.MinDelay != 7000 || v.MaxDelay != 9000 {
		t.Fatalf("unexpected easy band %d-%d", v.MinDelay, v.MaxDelay)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	r, _ := setupRouter(t)

	cases := []struct {
		body string
		code int
	}{
		{`not json`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"scenarioId":"unknown"}`, http.StatusNotFound},
		{`{"scenarioId":"job-interview","difficulty":"insane"}`, http.StatusBadRequest},
		{`{"scenarioId":"job-interview","strategy":"shuffle"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if resp := do(r, http.MethodPost, "/session", tc.body); resp.Code != tc.code {
			t.Fatalf("body %s: expected %d, got %d", tc.body, tc.code, resp.Code)
		}
	}
}

func TestSubmitMessageAndReply(t *testing.T) {
	r, clk := setupRouter(t)
	v := createSession(t, r)
	base := "/session/" + v.Session.ID

	resp := do(r, http.MethodPost, base+"/messages", `{"content":"I have been building distributed systems for six years"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}

	resp = do(r, http.MethodPost, base+"/messages", `{"content":"   "}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", resp.Code)
	}

	clk.Advance(9 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp = do(r, http.MethodGet, base, "")
		var got view
		if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode session: %v", err)
		}
		if len(got.Messages) == 3 {
			if got.State.TurnIndex != 2 || got.State.AwaitingAgentTurn {
				t.Fatalf("unexpected state %+v", got.State)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("agent reply never arrived, have %d messages", len(got.Messages))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSetDifficulty(t *testing.T) {
	r, _ := setupRouter(t)
	v := createSession(t, r)
	base := "/session/" + v.Session.ID

	resp := do(r, http.MethodPut, base+"/difficulty", `{"difficulty":"hard"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = do(r, http.MethodPut, base+"/difficulty", `{"difficulty":"unknown"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	resp = do(r, http.MethodPut, "/session/missing/difficulty", `{"difficulty":"hard"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestEndSession(t *testing.T) {
	r, _ := setupRouter(t)
	v := createSession(t, r)
	base := "/session/" + v.Session.ID

	resp := do(r, http.MethodPost, base+"/end", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var summary store.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.SessionID != v.Session.ID {
		t.Fatalf("summary for wrong session: %s", summary.SessionID)
	}
	if summary.Transcript == nil {
		t.Fatal("transcript is saved by default")
	}

	if resp := do(r, http.MethodGet, base, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after end, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, base+"/messages", `{"content":"hello?"}`); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after end, got %d", resp.Code)
	}
}

func TestEndSessionWithoutTranscript(t *testing.T) {
	r, _ := setupRouter(t)
	v := createSession(t, r)

	resp := do(r, http.MethodPost, "/session/"+v.Session.ID+"/end", `{"saveTranscript":false}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var summary store.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Transcript != nil {
		t.Fatal("expected no transcript")
	}
}

package main

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-practice/backend/internal/config"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/internal/service/ai"
	"github.com/zhouzirui/z-practice/backend/internal/store"
)

func TestHistoryCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "practice.db")
	t.Setenv("PRACTICE_DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	repo, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, repo.Append(context.Background(), store.Summary{
		ID:         "sum-1",
		SessionID:  "sess-1",
		ScenarioID: "job-interview",
		Date:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		Score:      77,
		Duration:   245,
		Difficulty: "hard",
	}))
	require.NoError(t, repo.Close())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"history", "--limit", "5"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "sum-1")
	assert.Contains(t, out.String(), "job-interview")
	assert.Contains(t, out.String(), "4m5s")
}

func TestHistoryCommandEmpty(t *testing.T) {
	t.Setenv("PRACTICE_DB_PATH", filepath.Join(t.TempDir(), "practice.db"))
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"history", "--scenario", "job-interview"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "no sessions recorded")
}

func TestBuildRespondersWithoutCredentials(t *testing.T) {
	factory, chatResponder, advisor := buildResponders(context.Background(), config.AIConfig{})

	assert.IsType(t, &ai.HeuristicResponder{}, chatResponder)
	assert.IsType(t, &ai.HeuristicResponder{}, factory(scenario.Seed()[0]))
	require.NotNil(t, advisor)
	assert.False(t, advisor.Enabled())
	assert.Contains(t, advisor.Advise(context.Background(), nil, "Sorry, I'm nervous"), "encouraging")
}

func TestLoadScenariosDefaultsToSeed(t *testing.T) {
	scenarios, err := loadScenarios(config.PracticeConfig{})
	require.NoError(t, err)
	assert.Len(t, scenarios.List(), len(scenario.Seed()))

	_, err = loadScenarios(config.PracticeConfig{ScenariosFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

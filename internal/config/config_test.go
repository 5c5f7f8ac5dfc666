package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGINS", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL", "Model",
		"ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS", "AI_HISTORY_LIMIT", "AI_TIMEOUT",
		"PRACTICE_DIFFICULTY", "PRACTICE_STRATEGY", "PRACTICE_SILENCE_WINDOW", "PRACTICE_SPEAK_TIMEOUT",
		"PRACTICE_SCENARIOS_FILE", "PRACTICE_DB_PATH", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, 20, cfg.AI.HistoryLimit)
	assert.Equal(t, conversation.Medium, cfg.Practice.DefaultDifficulty)
	assert.Equal(t, 1500*time.Millisecond, cfg.Practice.SilenceWindow)
	assert.Equal(t, "data/practice.db", cfg.Storage.DBPath)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173, https://practice.example.com")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao-pro")
	t.Setenv("ARK_TEMPERATURE", "0.4")
	t.Setenv("AI_HISTORY_LIMIT", "0")
	t.Setenv("PRACTICE_DIFFICULTY", "Hard")
	t.Setenv("PRACTICE_STRATEGY", "round-robin")
	t.Setenv("PRACTICE_SILENCE_WINDOW", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173", "https://practice.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "doubao-pro", cfg.AI.Model)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.4, *cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 1, cfg.AI.HistoryLimit)
	assert.Equal(t, conversation.Hard, cfg.Practice.DefaultDifficulty)
	assert.Equal(t, conversation.StrategyRoundRobin, cfg.Practice.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Practice.SilenceWindow)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                    "80 80",
		"ARK_MAX_TOKENS":          "lots",
		"PRACTICE_DIFFICULTY":     "legendary",
		"PRACTICE_STRATEGY":       "shuffle",
		"PRACTICE_SILENCE_WINDOW": "-1s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

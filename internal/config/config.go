package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Practice PracticeConfig
	Storage  StorageConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	practice, err := loadPracticeConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Practice: practice,
		Storage:  StorageConfig{DBPath: getEnvOrDefault("PRACTICE_DB_PATH", "data/practice.db")},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
			File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
	Timeout      time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and ARK_MODEL, or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		val := c.Timeout
		timeout = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		Timeout:     timeout,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 1)
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	// 兼容旧的 Model 变量名
	modelName := getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model")))

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        modelName,
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: historyLimit,
		Timeout:      timeout,
	}, nil
}

// PracticeConfig 描述对话练习的默认行为。
type PracticeConfig struct {
	DefaultDifficulty conversation.Difficulty
	Strategy          conversation.Strategy
	SilenceWindow     time.Duration
	SpeakTimeout      time.Duration
	ScenariosFile     string
}

func loadPracticeConfig() (PracticeConfig, error) {
	difficulty, err := conversation.ParseDifficulty(getEnvOrDefault("PRACTICE_DIFFICULTY", string(conversation.Medium)))
	if err != nil {
		return PracticeConfig{}, fmt.Errorf("invalid PRACTICE_DIFFICULTY: %w", err)
	}

	strategy, err := conversation.ParseStrategy(os.Getenv("PRACTICE_STRATEGY"))
	if err != nil {
		return PracticeConfig{}, fmt.Errorf("invalid PRACTICE_STRATEGY: %w", err)
	}

	silence, err := parseDurationEnv("PRACTICE_SILENCE_WINDOW", 1500*time.Millisecond)
	if err != nil {
		return PracticeConfig{}, err
	}

	speakTimeout, err := parseDurationEnv("PRACTICE_SPEAK_TIMEOUT", 30*time.Second)
	if err != nil {
		return PracticeConfig{}, err
	}

	return PracticeConfig{
		DefaultDifficulty: difficulty,
		Strategy:          strategy,
		SilenceWindow:     silence,
		SpeakTimeout:      speakTimeout,
		ScenariosFile:     strings.TrimSpace(os.Getenv("PRACTICE_SCENARIOS_FILE")),
	}, nil
}

// StorageConfig 描述会话历史存储。
type StorageConfig struct {
	DBPath string
}

// LogConfig 描述日志输出。File 为空时只输出到控制台。
type LogConfig struct {
	Level string
	File  string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

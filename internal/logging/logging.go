// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/zhouzirui/z-practice/backend/internal/config"
)

// Init installs a console logger on stdout and, when cfg.File is set, a rotating JSON file next to
// it. The returned closer flushes the file.
func Init(cfg config.LogConfig) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	if strings.TrimSpace(cfg.File) == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	return file, nil
}

func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

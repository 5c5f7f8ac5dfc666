package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-practice/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-practice/backend/internal/config"
	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/handler"
	"github.com/zhouzirui/z-practice/backend/internal/handler/speech"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/internal/service/ai"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logCloser, err := bootstrap()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	scenarios, err := loadScenarios(cfg.Practice)
	if err != nil {
		return err
	}

	history, err := store.NewSQLite(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer history.Close()

	responders, chatResponder, advisor := buildResponders(ctx, cfg.AI)

	sessions := sessionService.NewService(sessionService.Options{
		Scenarios:         scenarios,
		History:           history,
		Responders:        responders,
		Advisor:           advisor,
		DefaultDifficulty: cfg.Practice.DefaultDifficulty,
		DefaultStrategy:   cfg.Practice.Strategy,
	})
	defer sessions.Close()

	router := handler.NewRouter(handler.Dependencies{
		Scenarios:      scenarios,
		Sessions:       sessions,
		Chat:           chatResponder,
		History:        history,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Speech: speech.Options{
			SilenceWindow: cfg.Practice.SilenceWindow,
			SpeakTimeout:  cfg.Practice.SpeakTimeout,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return runServer(ctx, srv)
}

func loadScenarios(cfg config.PracticeConfig) (*scenario.MemoryStore, error) {
	if cfg.ScenariosFile == "" {
		return scenario.NewMemoryStore(scenario.Seed()), nil
	}

	items, err := scenario.LoadFile(cfg.ScenariosFile)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	log.Info().Str("file", cfg.ScenariosFile).Int("count", len(items)).Msg("scenarios loaded")
	return scenario.NewMemoryStore(items), nil
}

// buildResponders picks the Ark-backed chain when credentials are configured and the local
// question bank otherwise. The second result serves the standalone chat endpoint and the third
// reads the user's tone, through the same model when there is one.
func buildResponders(ctx context.Context, cfg config.AIConfig) (sessionService.ResponderFactory, conversation.Responder, *tone.Classifier) {
	if cfg.Enabled() {
		svc, classifier, err := newAIService(ctx, cfg)
		if err == nil {
			log.Info().Str("model", cfg.Model).Msg("AI service initialized")
			return func(scenario.Scenario) conversation.Responder { return svc }, svc, classifier
		}
		log.Warn().Err(err).Msg("failed to initialize AI service, falling back to local responder")
	} else {
		log.Info().Msg("Ark 凭证未配置，使用本地题库应答")
	}

	// a nil model never fails to build
	keywords, _ := tone.NewClassifier(ctx, nil)
	return func(sc scenario.Scenario) conversation.Responder {
		return ai.NewHeuristicResponder(sc.Questions)
	}, ai.NewHeuristicResponder(nil), keywords
}

func newAIService(ctx context.Context, cfg config.AIConfig) (*ai.Service, *tone.Classifier, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := ai.NewService(ctx, chatModel, ai.Config{HistoryLimit: cfg.HistoryLimit})
	if err != nil {
		return nil, nil, err
	}
	classifier, err := tone.NewClassifier(ctx, chatModel)
	if err != nil {
		return nil, nil, err
	}
	return svc, classifier, nil
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("practice backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

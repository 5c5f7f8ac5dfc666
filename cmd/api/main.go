package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-practice/backend/internal/config"
	"github.com/zhouzirui/z-practice/backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "practice-api",
		Short:         "Conversation practice backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newHistoryCmd())
	return root
}

// bootstrap loads .env and the environment, then installs the logger.
func bootstrap() (*config.Config, io.Closer, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	closer, err := logging.Init(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}

	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}
	return cfg, closer, nil
}

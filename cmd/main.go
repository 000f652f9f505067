package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mri-classifier/config"
	"mri-classifier/internal/api/queue"
	"mri-classifier/internal/api/rest"
	"mri-classifier/internal/api/telegram"
	"mri-classifier/internal/container"
	"mri-classifier/internal/infrastructure/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mri-classifier",
		Short:         "Brain MRI tumor classification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newBotCmd(),
		newWorkerCmd(),
		newPredictCmd(),
		newWeightsCmd(),
	)
	return root
}

// deps общие для серверных команд конфигурация, логгер и сервисы.
type deps struct {
	cfg *config.Config
	log *zap.Logger
	c   *container.Container
}

func setup() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	c, err := container.New(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &deps{cfg: cfg, log: log, c: c}, nil
}

func (a *deps) close() {
	if err := a.c.Close(); err != nil {
		a.log.Warn("close resources", zap.Error(err))
	}
	_ = a.log.Sync()
}

// requireModel для режимов, где без модели работать бессмысленно.
func (a *deps) requireModel() error {
	if a.c.ModelErr != nil {
		return fmt.Errorf("model not loaded: %w", a.c.ModelErr)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.requireModel(); err != nil {
				return err
			}
			srv := rest.NewServer(a.c.PredictionService, rest.Options{
				Port:           a.cfg.Port,
				RequestTimeout: a.cfg.RequestTimeout,
				MaxUploadBytes: a.cfg.MaxUploadBytes,
				CORSOrigins:    a.cfg.CORSOrigins,
			}, a.log)
			return srv.Run(cmd.Context())
		},
	}
}

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.TelegramToken == "" {
				return errors.New("TELEGRAM_TOKEN is required")
			}
			if err := a.requireModel(); err != nil {
				return err
			}

			bot, err := telegram.NewBot(a.cfg.TelegramToken, a.c.UserService, a.c.PredictionService, telegram.Options{
				Timeout:      a.cfg.RequestTimeout,
				MaxFileBytes: a.cfg.MaxUploadBytes,
			}, a.log)
			if err != nil {
				return fmt.Errorf("create bot: %w", err)
			}

			a.log.Info("bot is running")
			return bot.Run(cmd.Context())
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve classification requests from RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.requireModel(); err != nil {
				return err
			}

			conn, err := queue.Dial(cmd.Context(), a.cfg.AMQPURL, a.log)
			if err != nil {
				return err
			}
			defer conn.Close()

			w := queue.NewWorker(a.c.PredictionService, a.cfg.AMQPQueue, a.cfg.RequestTimeout, a.log)
			return w.Run(cmd.Context(), conn)
		},
	}
}

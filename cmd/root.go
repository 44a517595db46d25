// Package cmd implements the atendente command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emvidros/atendente/internal/app"
	"github.com/emvidros/atendente/internal/config"
	"github.com/emvidros/atendente/internal/log"
)

var debugLogging bool

var rootCmd = &cobra.Command{
	Use:   "atendente",
	Short: "Assistente virtual da EM Vidros",
	Long: `Atendente é o assistente virtual da EM Vidros. Ele responde perguntas de
clientes sobre produtos e serviços com base no site e nos documentos da
empresa, e encaminha questões de entrega para o suporte humano.

Executar atendente sem argumentos inicia o modo de conversa interativo.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command. Called from main. Ctrl+C cancels the
// command context so long crawls and model calls stop cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
}

// newLogger builds the process logger. Debug level comes from --debug or the
// DEBUG environment variable.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debugLogging || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// buildApp loads configuration and wires the application. The caller must
// Close the returned App.
func buildApp(ctx context.Context) (*app.App, *slog.Logger, error) {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: OPENROUTER_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Set your API key with:")
		fmt.Fprintln(os.Stderr, "  export OPENROUTER_API_KEY=your-api-key")
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

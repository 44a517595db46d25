package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emvidros/atendente/internal/assistant"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "",
		"session ID to record the exchange in (omit for a stateless question)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, logger, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.StartupIngest(ctx); err != nil {
		logger.Warn("startup ingestion failed", "error", err)
	}

	question := strings.Join(args, " ")

	var answer *assistant.Answer
	if askSession != "" {
		sessionID, err := uuid.Parse(askSession)
		if err != nil {
			return fmt.Errorf("invalid session ID %q: %w", askSession, err)
		}
		answer, err = a.Engine.Chat(ctx, sessionID, question)
		if err != nil {
			return err
		}
	} else {
		answer, err = a.Engine.Query(ctx, question)
		if err != nil {
			return err
		}
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Fontes:")
		for _, src := range answer.Sources {
			if src.URL != "" {
				fmt.Printf("  - %s (%s)\n", src.Title, src.URL)
			} else {
				fmt.Printf("  - %s\n", src.Title)
			}
		}
	}
	return nil
}

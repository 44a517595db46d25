package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/emvidros/atendente/internal/app"
	"github.com/emvidros/atendente/internal/assistant"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, logger, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.StartupIngest(ctx); err != nil {
		// Stale context documents degrade answers but do not block chat.
		logger.Warn("startup ingestion failed", "error", err)
	}

	sessionID := uuid.New()
	fmt.Println("Atendente EM Vidros. Digite sua pergunta, /help para comandos, /sair para encerrar.")
	fmt.Printf("Sessão: %s\n\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := chatCommand(ctx, a, &sessionID, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "erro: %v\n", err)
			}
			if done {
				break
			}
			continue
		}

		answer, err := a.Engine.Chat(ctx, sessionID, line)
		if err != nil {
			switch {
			case errors.Is(err, assistant.ErrRetrievalUnavailable):
				fmt.Println("Desculpe, a base de conhecimento está indisponível no momento. Tente novamente em instantes.")
			case errors.Is(err, assistant.ErrGenerationFailed):
				fmt.Println("Desculpe, ocorreu um erro ao gerar a resposta. Por favor, tente novamente.")
			default:
				fmt.Fprintf(os.Stderr, "erro: %v\n", err)
			}
			continue
		}

		fmt.Println()
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
		fmt.Println()
	}

	return scanner.Err()
}

// chatCommand handles slash commands. Returns true when the loop must end.
func chatCommand(ctx context.Context, a *app.App, sessionID *uuid.UUID, line string) (bool, error) {
	switch strings.ToLower(line) {
	case "/sair", "/exit", "/quit":
		fmt.Println("Até logo!")
		return true, nil
	case "/nova", "/new":
		*sessionID = uuid.New()
		fmt.Printf("Nova sessão: %s\n", *sessionID)
		return false, nil
	case "/limpar", "/clear":
		if err := a.Sessions.Clear(ctx, *sessionID); err != nil {
			return false, err
		}
		fmt.Println("Histórico da sessão apagado.")
		return false, nil
	case "/stats":
		stats, err := a.Stats(ctx)
		if err != nil {
			return false, err
		}
		printStats(stats)
		return false, nil
	case "/help", "/ajuda":
		fmt.Println("Comandos: /nova (nova sessão), /limpar (apaga histórico), /stats, /sair")
		return false, nil
	default:
		fmt.Printf("Comando desconhecido: %s\n", line)
		return false, nil
	}
}

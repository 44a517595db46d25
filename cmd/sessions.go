package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var purgeDays int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions by recency",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the transcript of one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete the turns of a session, keeping the session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its turns",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions idle longer than --days",
	RunE:  runSessionsPurge,
}

func init() {
	sessionsPurgeCmd.Flags().IntVar(&purgeDays, "days", 30, "idle threshold in days")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Sessions.List(ctx, 100)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTURNS\tCREATED\tLAST ACTIVE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			s.ID, s.TurnCount,
			s.CreatedAt.Format(time.RFC3339),
			s.LastActiveAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	turns, err := a.Sessions.History(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Println("Session has no turns.")
		return nil
	}
	for _, t := range turns {
		fmt.Printf("[%s] %s:\n%s\n\n", t.CreatedAt.Format(time.RFC3339), t.Role, t.Text)
	}
	return nil
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sessions.Clear(ctx, sessionID); err != nil {
		return err
	}
	fmt.Println("Session cleared.")
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sessionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	fmt.Println("Session deleted.")
	return nil
}

func runSessionsPurge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.Sessions.PurgeIdle(ctx, time.Duration(purgeDays)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d idle sessions.\n", count)
	return nil
}

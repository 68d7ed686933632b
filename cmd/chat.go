package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"siterag/internal/rag"
	"siterag/internal/session"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Opens a conversational loop with history. Each exchange is persisted
under a session ID, so follow-up questions can build on earlier turns.

A fresh session ID is generated unless --session resumes an existing one.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sessionID := chatSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	fmt.Printf("siterag chat. Session: %s\n", sessionID)
	fmt.Println("Type /help for commands, /exit to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye.")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			exit, newID := handleChatCommand(ctx, a.Sessions, input, sessionID)
			if exit {
				break
			}
			sessionID = newID
			continue
		}

		// Follow-up questions are rewritten into standalone ones so
		// retrieval sees the full intent, not just the latest fragment.
		query, err := a.Model.RefineQuery(ctx, input, sessionID)
		if err != nil {
			query = input
		}

		answer := a.Pipeline.Ask(ctx, query, rag.ModeChat, nil, sessionID)
		fmt.Println(answer.Response)
		fmt.Print(renderReferences(answer.References))
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// handleChatCommand processes a slash command. Returns whether to exit and
// the session ID to continue with.
func handleChatCommand(ctx context.Context, sessions *session.Store, input, sessionID string) (exit bool, nextID string) {
	nextID = sessionID

	switch fields := strings.Fields(input); fields[0] {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help      Show this help")
		fmt.Println("  /new       Start a fresh session")
		fmt.Println("  /history   Show the current session's turns")
		fmt.Println("  /clear     Delete the current session's history")
		fmt.Println("  /exit      Quit")
		fmt.Println()

	case "/new":
		nextID = uuid.NewString()
		fmt.Printf("New session: %s\n\n", nextID)

	case "/history":
		turns, err := sessions.Turns(ctx, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading history: %v\n", err)
			break
		}
		if len(turns) == 0 {
			fmt.Println("No history yet.")
			fmt.Println()
			break
		}
		fmt.Println(session.FormatTurns(turns))
		fmt.Println()

	case "/clear":
		if err := sessions.Delete(ctx, sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "clearing history: %v\n", err)
			break
		}
		fmt.Println("History cleared.")
		fmt.Println()

	case "/exit", "/quit":
		fmt.Println("Goodbye.")
		return true, nextID

	default:
		fmt.Printf("Unknown command: %s\n", fields[0])
		fmt.Println("Type /help to see available commands.")
		fmt.Println()
	}

	return false, nextID
}

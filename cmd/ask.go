package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"siterag/internal/rag"
)

var askTopic string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question against the indexed site",
	Long: `Answers one question without conversation history. Retrieved source
pages are listed after the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askTopic, "topic", "", "restrict retrieval to one topic")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	question := strings.Join(args, " ")

	var filter map[string]string
	if askTopic != "" {
		filter = map[string]string{"topic": askTopic}
	}

	answer := a.Pipeline.Ask(ctx, question, rag.ModeSearch, filter, "")

	fmt.Println(answer.Response)
	fmt.Print(renderReferences(answer.References))
	return nil
}

// renderReferences formats the source list printed after an answer. Empty
// input renders nothing.
func renderReferences(refs []rag.Reference) string {
	if len(refs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nSources:\n")
	for i, ref := range refs {
		fmt.Fprintf(&b, "  %d. %s\n     %s", i+1, ref.Title, ref.URL)
		if ref.Score != nil {
			fmt.Fprintf(&b, " (score %.4f)", *ref.Score)
		}
		b.WriteString("\n")
	}
	return b.String()
}

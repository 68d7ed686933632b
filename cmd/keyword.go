package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"siterag/internal/rag"
)

// noKeywordResults is printed when a keyword search matches nothing.
const noKeywordResults = "No documents found for the given search."

var keywordTopics []string

var keywordCmd = &cobra.Command{
	Use:   "keyword <text>",
	Short: "Search indexed pages by topic and content substring",
	Long: `Exact-match search without embeddings. Documents must contain the
given text; --topics further restricts the match to named topics.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKeyword,
}

func init() {
	keywordCmd.Flags().StringSliceVar(&keywordTopics, "topics", nil, "topics to search within (comma separated)")
	rootCmd.AddCommand(keywordCmd)
}

func runKeyword(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	text := strings.Join(args, " ")
	results := a.Pipeline.KeywordSearch(ctx, text, keywordTopics, a.Config.TopKResults)

	fmt.Print(renderKeywordResults(results))
	return nil
}

// renderKeywordResults formats keyword hits, or the no-results message when
// there are none.
func renderKeywordResults(results []rag.KeywordResult) string {
	if len(results) == 0 {
		return noKeywordResults + "\n"
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.ShortContent)
	}
	return b.String()
}

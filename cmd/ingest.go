package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [sitemap-url]",
	Short: "Crawl a sitemap and index its pages",
	Long: `Fetches the sitemap, downloads every listed page, strips navigation
and boilerplate, and stores the cleaned content with embeddings.

The sitemap URL comes from configuration; an argument overrides it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if len(args) == 1 {
		a.Config.SitemapURL = args[0]
	}
	if a.Config.SitemapURL == "" {
		return fmt.Errorf("no sitemap URL: pass one as an argument or set SITERAG_SITEMAP_URL")
	}

	loader, err := a.NewLoader()
	if err != nil {
		return fmt.Errorf("creating loader: %w", err)
	}

	stats, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingestion complete.\n")
	fmt.Printf("  URLs:          %d\n", stats.TotalURLs)
	fmt.Printf("  Blocks:        %d\n", stats.TotalBlocks)
	fmt.Printf("  Documents:     %d\n", stats.StoredDocs)
	if stats.FailedBlocks > 0 {
		fmt.Printf("  Failed blocks: %d\n", stats.FailedBlocks)
	}
	return nil
}

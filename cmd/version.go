package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"siterag/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("siterag %s\n", AppVersion)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

		// Configuration is informational here; an invalid one should not
		// prevent the version from printing.
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nConfiguration unavailable: %v\n", err)
			return
		}

		fmt.Println()
		fmt.Println("Configuration:")
		fmt.Printf("  Chat model: %s\n", cfg.ChatModelName())
		fmt.Printf("  Embedding model: %s\n", cfg.EmbeddingModelName())
		fmt.Printf("  Collection: %s\n", cfg.Collection)
		fmt.Printf("  Temperature: %.2f\n", cfg.Temperature)
		fmt.Printf("  Max tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("  Score threshold: %.2f\n", cfg.ScoreThreshold)
		fmt.Printf("  Top-k results: %d\n", cfg.TopKResults)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

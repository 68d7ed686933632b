// Package cmd implements the siterag command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"siterag/internal/app"
	"siterag/internal/config"
	"siterag/internal/log"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "siterag",
	Short: "Retrieval-augmented question answering over a website",
	Long: `siterag ingests a website through its sitemap, stores embedded page
content in PostgreSQL with pgvector, and answers questions grounded in the
retrieved pages.

Run 'siterag ingest' once, then 'siterag chat' or 'siterag ask'.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// newLogger builds the CLI logger. Logs go to stderr so stdout stays clean
// for command output.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if debugFlag || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// setup loads configuration (validated inside Load) and builds the
// application. The caller owns the returned App and must Close it.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return app.Setup(ctx, cfg, newLogger())
}

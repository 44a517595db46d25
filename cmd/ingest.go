package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emvidros/atendente/internal/app"
	"github.com/emvidros/atendente/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load content into the knowledge base",
}

var ingestCrawlCmd = &cobra.Command{
	Use:   "crawl [url]",
	Short: "Crawl the website and index its pages",
	Long: `Crawl fetches same-domain pages starting at the given URL (or the
configured website_url) and indexes their visible text. Unchanged pages are
skipped by content hash, so repeated runs are cheap.

With --fresh, previously indexed website pages are removed first, so pages
that no longer exist on the site drop out of the knowledge base.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngestCrawl,
}

var ingestFresh bool

var ingestFilesCmd = &cobra.Command{
	Use:   "files [dir]",
	Short: "Index documents from a directory",
	Long: `Files indexes PDF, DOCX, TXT and Markdown documents from the given
directory (or the configured context_dir). Unsupported extensions are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngestFiles,
}

var ingestStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  runIngestStats,
}

func init() {
	ingestCrawlCmd.Flags().BoolVar(&ingestFresh, "fresh", false,
		"remove previously indexed website pages before crawling")
	ingestCmd.AddCommand(ingestCrawlCmd)
	ingestCmd.AddCommand(ingestFilesCmd)
	ingestCmd.AddCommand(ingestStatsCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestCrawl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	seed := a.Config.WebsiteURL
	if len(args) == 1 {
		seed = args[0]
	}

	crawl := a.Pipeline.Crawl
	if ingestFresh {
		crawl = a.Pipeline.CrawlFresh
	}
	summary, err := crawl(ctx, seed)
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runIngestFiles(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.Config.ContextDir
	if len(args) == 1 {
		dir = args[0]
	}

	summary, err := a.Pipeline.Files(ctx, dir)
	if summary != nil {
		printSummary(summary)
	}
	return err
}

func runIngestStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(stats)
	return nil
}

func printSummary(s *ingest.Summary) {
	fmt.Printf("Ingested: %d  Skipped (unchanged): %d  Failed: %d  (%s)\n",
		s.Ingested, s.Skipped, s.Failed, s.Duration.Round(100*time.Millisecond))
	for _, f := range s.Failures {
		fmt.Printf("  failed %s: %v\n", f.Source, f.Err)
	}
}

func printStats(s *app.Stats) {
	fmt.Printf("Chunks indexed:  %d (website %d, files %d)\n",
		s.TotalChunks, s.WebsiteChunks, s.FileChunks)
	fmt.Printf("Sessions stored: %d\n", s.Sessions)
	fmt.Printf("Model:           %s\n", s.Model)
}

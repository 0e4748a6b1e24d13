package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/extract"
)

// crawledPage is the per-page summary printed by crawl.
type crawledPage struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Breadcrumbs []string `json:"breadcrumbs"`
	Headings    int      `json:"headings"`
	Links       int      `json:"links"`
}

// newCrawlCmd crawls without storing anything, printing one JSON line per page.
func newCrawlCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawls a site and prints what each page contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args[0], maxPages)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page limit (default crawler.max_pages)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, startURL string, maxPages int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	crawl := appInstance.Engine.Crawl(startURL, maxPages)
	out := cmd.OutOrStdout()
	err = crawl.Walk(cmd.Context(), func(page extract.PageContent) error {
		breadcrumbs := page.Breadcrumbs
		if breadcrumbs == nil {
			breadcrumbs = []string{}
		}
		return writeLine(out, crawledPage{
			URL:         page.URL,
			Title:       page.Title,
			Breadcrumbs: breadcrumbs,
			Headings:    len(page.Headings),
			Links:       len(page.Links),
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl %s: %w", startURL, err)
	}
	appInstance.GetLogger().Info("crawl command finished", zap.Int("visited", crawl.Visited()))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/ingest"
)

func newRebuildCmd() *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "rebuild <base-url>",
		Short: "Deletes a domain's documents and re-crawls it from base-url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuildCommand(cmd, args[0], maxPages)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page limit (default crawler.rebuild_max_pages)")
	return cmd
}

func runRebuildCommand(cmd *cobra.Command, baseURL string, maxPages int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if maxPages <= 0 {
		maxPages = appInstance.Config.Crawler.RebuildMaxPages
	}
	logger := appInstance.GetLogger()
	report, err := appInstance.Coordinator.Rebuild(cmd.Context(), baseURL, maxPages, func(r ingest.RebuildReport) {
		logger.Debug("rebuild progress", zap.Int("pages", r.Pages), zap.Int("failed", r.Failed))
	})
	if outErr := writeOutput(cmd, report); outErr != nil {
		return outErr
	}
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", baseURL, err)
	}
	return nil
}

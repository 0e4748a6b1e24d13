package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/extract"
	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

// RebuildReport summarises a domain rebuild.
type RebuildReport struct {
	Domain  string `json:"domain"`
	Pages   int    `json:"pages"`
	Chunks  int    `json:"chunks"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
}

// ProgressFunc receives the running report after every page.
type ProgressFunc func(RebuildReport)

// Rebuild deletes every stored document of baseURL's domain, then crawls from
// baseURL and ingests each page. A page that fails to ingest is logged,
// counted and skipped. The partial report is returned alongside any crawl
// error.
func (c *Coordinator) Rebuild(ctx context.Context, baseURL string, maxPages int, progress ProgressFunc) (RebuildReport, error) {
	if c.engine == nil {
		return RebuildReport{}, errors.New("rebuild: no crawl engine configured")
	}
	start := urlnorm.Canonicalize(baseURL)
	report := RebuildReport{Domain: urlnorm.Host(start)}
	logger := c.logger.With(zap.String("domain", report.Domain))

	deleted, err := c.store.DeleteDocumentsByDomain(ctx, report.Domain)
	if err != nil {
		return report, fmt.Errorf("delete domain documents: %w", err)
	}
	report.Deleted = deleted
	logger.Info("rebuild started", zap.Int("deleted", deleted), zap.Int("max_pages", maxPages))

	crawl := c.engine.Crawl(start, maxPages)
	err = crawl.Walk(ctx, func(page extract.PageContent) error {
		res, ingestErr := c.Ingest(ctx, page)
		if ingestErr != nil {
			report.Failed++
			logger.Warn("page ingest failed", zap.String("url", page.URL), zap.Error(ingestErr))
		} else {
			report.Pages++
			report.Chunks += res.Chunks
		}
		if progress != nil {
			progress(report)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("rebuild crawl: %w", err)
	}
	logger.Info("rebuild finished",
		zap.Int("pages", report.Pages),
		zap.Int("chunks", report.Chunks),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

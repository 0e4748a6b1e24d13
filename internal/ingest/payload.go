package ingest

import (
	"fmt"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/extract"
	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

// Payload is the change-detection view of a page.
type Payload struct {
	URL         string
	Domain      string
	Title       string
	Content     string
	ContentHash string
}

// BuildPayload flattens the page's main content and fingerprints it. The hash
// depends only on the cleaned text, so cosmetic markup changes outside main
// content never trigger a re-embed.
func BuildPayload(page extract.PageContent, hasher crawler.Hasher) (Payload, error) {
	main, err := extract.MainContent(page.RawHTML)
	if err != nil {
		return Payload{}, fmt.Errorf("main content: %w", err)
	}
	content := extract.CleanText(main)
	hash, err := hasher.Hash([]byte(content))
	if err != nil {
		return Payload{}, fmt.Errorf("hash content: %w", err)
	}
	return Payload{
		URL:         page.URL,
		Domain:      urlnorm.Host(page.URL),
		Title:       page.Title,
		Content:     content,
		ContentHash: hash,
	}, nil
}

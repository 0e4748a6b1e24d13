// Package extract turns a fetched HTML page into structured content: title,
// heading outline, navigation tree, breadcrumbs, outbound links and a
// Markdown rendering of the main content.
package extract

import (
	"fmt"
	"sort"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

// Heading is an h1-h4 element found in the main content.
type Heading struct {
	Tag   string `json:"tag"`
	Text  string `json:"text"`
	Depth int    `json:"depth"`
}

// NavItem is one entry of the site navigation tree. URL is nil when the
// entry carries no link.
type NavItem struct {
	Title       string   `json:"title"`
	URL         *string  `json:"url"`
	Breadcrumbs []string `json:"breadcrumbs"`
	Depth       int      `json:"depth"`
}

// PageContent is everything extracted from a single page. Values are not
// modified after Extract returns.
type PageContent struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	RawHTML     string    `json:"-"`
	Markdown    string    `json:"markdown"`
	Headings    []Heading `json:"headings"`
	NavTree     []NavItem `json:"nav_tree"`
	Breadcrumbs []string  `json:"breadcrumbs"`
	Links       []string  `json:"links"`
}

// Extractor parses pages. It is safe for concurrent use.
type Extractor struct {
	md *converter.Converter
}

// New builds an Extractor with a CommonMark + tables Markdown converter.
func New() *Extractor {
	return &Extractor{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract parses rawHTML fetched from pageURL. The raw document is parsed
// twice: once untouched for title, navigation and breadcrumbs, once with noise
// removed for headings, links and Markdown.
func (e *Extractor) Extract(pageURL, rawHTML string) (PageContent, error) {
	doc, err := parse(rawHTML)
	if err != nil {
		return PageContent{}, err
	}
	main, err := MainContent(rawHTML)
	if err != nil {
		return PageContent{}, err
	}

	markdown, err := e.Markdown(pageURL, main)
	if err != nil {
		return PageContent{}, err
	}

	return PageContent{
		URL:         pageURL,
		Title:       pageTitle(doc, main),
		RawHTML:     rawHTML,
		Markdown:    markdown,
		Headings:    headings(main),
		NavTree:     navTree(doc, pageURL),
		Breadcrumbs: breadcrumbs(doc),
		Links:       links(main, pageURL),
	}, nil
}

// Markdown renders a selection as Markdown, resolving relative links against
// pageURL.
func (e *Extractor) Markdown(pageURL string, sel *goquery.Selection) (string, error) {
	fragment, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	out, err := e.md.ConvertString(fragment, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return out, nil
}

func pageTitle(doc *goquery.Document, main *goquery.Selection) string {
	if title := CleanText(doc.Find("title").First()); title != "" {
		return title
	}
	var first string
	main.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		first = CleanText(s)
		return first == ""
	})
	return first
}

func headings(main *goquery.Selection) []Heading {
	var out []Heading
	main.Find("h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		out = append(out, Heading{
			Tag:   tag,
			Text:  CleanText(s),
			Depth: HeadingDepth(tag),
		})
	})
	return out
}

// HeadingDepth returns 1-4 for h1-h4 tags and 0 for anything else.
func HeadingDepth(tag string) int {
	if len(tag) != 2 || tag[0] != 'h' || tag[1] < '1' || tag[1] > '4' {
		return 0
	}
	return int(tag[1] - '0')
}

func links(main *goquery.Selection, pageURL string) []string {
	seen := make(map[string]struct{})
	main.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if resolved, ok := urlnorm.Resolve(pageURL, href); ok {
			seen[resolved] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for link := range seen {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// noiseSelector lists the page chrome stripped before main content is chosen.
const noiseSelector = "header, footer, nav, aside, script, style, " +
	"[role=banner], [role=contentinfo], .sidebar, .menu, .breadcrumbs"

var textFixer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u00a0", " ",
	"\u200b", "",
	"\ufeff", "",
)

// MainContent parses rawHTML into a fresh tree, strips navigation and other
// noise, and returns the first <main>, else the first <article>, else the
// document body. The returned selection belongs to a tree private to the call.
func MainContent(rawHTML string) (*goquery.Selection, error) {
	doc, err := parse(rawHTML)
	if err != nil {
		return nil, err
	}
	doc.Find(noiseSelector).Remove()
	return selectMain(doc), nil
}

func selectMain(doc *goquery.Document) *goquery.Selection {
	if main := doc.Find("main").First(); main.Length() > 0 {
		return main
	}
	if article := doc.Find("article").First(); article.Length() > 0 {
		return article
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func parse(rawHTML string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// CleanText flattens a selection to text. Every text node becomes its own
// line block, each line is trimmed, and blank lines are dropped, so code and
// preformatted blocks keep their line structure.
func CleanText(sel *goquery.Selection) string {
	var lines []string
	for _, n := range sel.Nodes {
		collectText(n, &lines)
	}
	return strings.Join(lines, "\n")
}

func collectText(n *html.Node, lines *[]string) {
	switch n.Type {
	case html.TextNode:
		for _, line := range strings.Split(n.Data, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				*lines = append(*lines, trimmed)
			}
		}
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

// Normalize repairs common text damage: Unicode is composed to NFC, line
// endings become \n, and non-breaking or zero-width spaces are replaced.
func Normalize(text string) string {
	return norm.NFC.String(textFixer.Replace(text))
}

// Package chunker splits a page's main content into heading-scoped sections
// and packs them into token-bounded chunks that carry their place in the
// document hierarchy.
package chunker

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/guidecrawler/internal/extract"
	"github.com/JakeFAU/guidecrawler/internal/tokenizer"
	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

// DefaultMaxTokens bounds a chunk when Config.MaxTokens is unset.
const DefaultMaxTokens = 1000

// Config controls chunk sizing.
type Config struct {
	MaxTokens int
}

// Metadata travels with every chunk into storage and retrieval.
type Metadata struct {
	Title       string   `json:"title"`
	Depth       int      `json:"depth"`
	Breadcrumbs []string `json:"breadcrumbs"`
	ChunkIndex  int      `json:"chunk_index"`
	URL         string   `json:"url"`
	Domain      string   `json:"domain"`
}

// Chunk is a retrieval-sized slice of a section. Text is never blank.
type Chunk struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Section is the content between two headings, or from the start of the page
// to its first heading.
type Section struct {
	Title       string
	Depth       int
	Breadcrumbs []string
	URL         string
	Domain      string
	Text        string
}

// Chunker turns pages into chunks.
type Chunker struct {
	counter   tokenizer.Counter
	extractor *extract.Extractor
	maxTokens int
}

// New builds a Chunker. A nil counter counts words.
func New(counter tokenizer.Counter, extractor *extract.Extractor, cfg Config) *Chunker {
	if counter == nil {
		counter = tokenizer.WordCounter{}
	}
	if extractor == nil {
		extractor = extract.New()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Chunker{counter: counter, extractor: extractor, maxTokens: cfg.MaxTokens}
}

// Chunk splits page into ordered chunks with indices 0..n-1. Sections within
// budget become one chunk; larger ones are packed line by line.
func (c *Chunker) Chunk(page extract.PageContent) ([]Chunk, error) {
	sections, err := c.Sections(page)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	emit := func(sec Section, text string) {
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			Index: idx,
			Text:  text,
			Metadata: Metadata{
				Title:       sec.Title,
				Depth:       sec.Depth,
				Breadcrumbs: sec.Breadcrumbs,
				ChunkIndex:  idx,
				URL:         sec.URL,
				Domain:      sec.Domain,
			},
		})
	}

	for _, sec := range sections {
		text := strings.TrimSpace(sec.Text)
		if text == "" {
			continue
		}
		if c.counter.Count(text) <= c.maxTokens {
			emit(sec, text)
			continue
		}
		for _, part := range c.pack(text) {
			emit(sec, part)
		}
	}
	return chunks, nil
}

// pack greedily fills chunks line by line. A buffer is flushed once adding
// the next line would exceed the budget, so a single oversized line still
// becomes its own chunk.
func (c *Chunker) pack(text string) []string {
	var (
		out []string
		buf []string
	)
	flush := func() {
		joined := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if joined != "" {
			out = append(out, joined)
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if len(buf) > 0 && c.counter.Count(strings.Join(buf, "\n")+"\n"+line) > c.maxTokens {
			flush()
		}
		buf = append(buf, line)
	}
	flush()
	return out
}

// Sections partitions the main content of page by walking its direct
// children. Each h1-h4 opens a new section whose breadcrumbs are the open
// headings above it.
func (c *Chunker) Sections(page extract.PageContent) ([]Section, error) {
	main, err := extract.MainContent(page.RawHTML)
	if err != nil {
		return nil, fmt.Errorf("select main content: %w", err)
	}

	domain := urlnorm.Host(page.URL)
	var (
		sections  []Section
		hierarchy []string
		parts     []string
	)
	current := Section{
		Title:       extract.Normalize(page.Title),
		Depth:       1,
		Breadcrumbs: []string{},
		URL:         page.URL,
		Domain:      domain,
	}
	closeSection := func() {
		if len(parts) == 0 {
			return
		}
		sec := current
		sec.Text = strings.Join(parts, "\n\n")
		sections = append(sections, sec)
		parts = nil
	}

	var walkErr error
	main.Contents().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		node := child.Get(0)
		switch node.Type {
		case html.TextNode:
			if text := strings.TrimSpace(node.Data); text != "" {
				parts = append(parts, extract.Normalize(text))
			}
			return true
		case html.ElementNode:
		default:
			return true
		}

		if depth := extract.HeadingDepth(node.Data); depth > 0 {
			closeSection()
			text := extract.Normalize(strings.ReplaceAll(extract.CleanText(child), "\n", " "))
			hierarchy = append(hierarchy[:min(depth-1, len(hierarchy))], text)
			title := text
			if title == "" {
				title = extract.Normalize(page.Title)
			}
			current = Section{
				Title:       title,
				Depth:       depth,
				Breadcrumbs: append([]string(nil), hierarchy...),
				URL:         page.URL,
				Domain:      domain,
			}
			return true
		}

		md, err := c.extractor.Markdown(page.URL, child)
		if err != nil {
			walkErr = err
			return false
		}
		if md = strings.TrimSpace(extract.Normalize(md)); md != "" {
			parts = append(parts, md)
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	closeSection()
	return sections, nil
}

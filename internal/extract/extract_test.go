package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const guidePage = `<!DOCTYPE html>
<html><head><title>Guide Home</title></head>
<body>
<header><h1>Site Header</h1></header>
<nav>
  <ul>
    <li><a href="/start">Start</a>
      <ul>
        <li><a href="/start/install">Install</a></li>
        <li>Offline</li>
      </ul>
    </li>
    <li><a href="https://example.com/faq">FAQ</a></li>
  </ul>
</nav>
<div class="breadcrumbs"><ul><li>Home</li><li>Guides</li></ul></div>
<main>
  <h1>Welcome</h1>
  <p>Intro with <a href="/a#x">A</a> and <a href="b">B</a> and <a href="/a">A again</a>.</p>
  <h2>Setup</h2>
  <pre><code>line one
    line two</code></pre>
  <script>var hidden = 1;</script>
</main>
<footer><a href="/footer">Footer link</a></footer>
</body></html>`

func TestExtractStructure(t *testing.T) {
	t.Parallel()

	page, err := New().Extract("https://example.com/docs/", guidePage)
	require.NoError(t, err)

	require.Equal(t, "https://example.com/docs/", page.URL)
	require.Equal(t, "Guide Home", page.Title)
	require.Equal(t, guidePage, page.RawHTML)
	require.Equal(t, []Heading{
		{Tag: "h1", Text: "Welcome", Depth: 1},
		{Tag: "h2", Text: "Setup", Depth: 2},
	}, page.Headings)
	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/docs/b",
	}, page.Links)
	require.Equal(t, []string{"Home", "Guides"}, page.Breadcrumbs)

	require.Contains(t, page.Markdown, "# Welcome")
	require.Contains(t, page.Markdown, "## Setup")
	require.Contains(t, page.Markdown, "line one")
	require.NotContains(t, page.Markdown, "Site Header")
	require.NotContains(t, page.Markdown, "hidden")
	require.NotContains(t, page.Markdown, "Footer link")
}

func TestExtractNavTreeIsBreadthFirst(t *testing.T) {
	t.Parallel()

	page, err := New().Extract("https://example.com/docs/", guidePage)
	require.NoError(t, err)
	require.Len(t, page.NavTree, 4)

	got := make([]string, 0, len(page.NavTree))
	for _, item := range page.NavTree {
		got = append(got, item.Title)
	}
	require.Equal(t, []string{"Start", "FAQ", "Install", "Offline"}, got)

	start := page.NavTree[0]
	require.Equal(t, 0, start.Depth)
	require.NotNil(t, start.URL)
	require.Equal(t, "https://example.com/start", *start.URL)
	require.Equal(t, []string{"Start"}, start.Breadcrumbs)

	install := page.NavTree[2]
	require.Equal(t, 1, install.Depth)
	require.Equal(t, "https://example.com/start/install", *install.URL)
	require.Equal(t, []string{"Start", "Install"}, install.Breadcrumbs)

	offline := page.NavTree[3]
	require.Nil(t, offline.URL)
	require.Equal(t, []string{"Start", "Offline"}, offline.Breadcrumbs)
}

func TestExtractTitleFallsBackToFirstHeading(t *testing.T) {
	t.Parallel()

	raw := `<html><body><nav><a href="/x">x</a></nav>
<article><h2>   </h2><h3>Deep Title</h3><p>text</p></article></body></html>`

	page, err := New().Extract("https://example.com/", raw)
	require.NoError(t, err)
	require.Equal(t, "Deep Title", page.Title)
	require.Empty(t, page.Links)
	require.Empty(t, page.Breadcrumbs)
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	ex := New()
	first, err := ex.Extract("https://example.com/docs/", guidePage)
	require.NoError(t, err)
	second, err := ex.Extract("https://example.com/docs/", guidePage)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCleanTextKeepsCodeLines(t *testing.T) {
	t.Parallel()

	main, err := MainContent(guidePage)
	require.NoError(t, err)

	text := CleanText(main)
	require.Contains(t, text, "Welcome\nIntro with\nA\nand\nB")
	require.Contains(t, text, "Setup\nline one\nline two")
	require.NotContains(t, text, "Site Header")
	require.NotContains(t, text, "hidden")
	require.Equal(t, text, CleanText(main))
}

func TestMainContentPrefersMainThenArticle(t *testing.T) {
	t.Parallel()

	sel, err := MainContent(`<body><article>article</article><main>main</main></body>`)
	require.NoError(t, err)
	require.Equal(t, "main", CleanText(sel))

	sel, err = MainContent(`<body><div>lead</div><article>article</article></body>`)
	require.NoError(t, err)
	require.Equal(t, "article", CleanText(sel))

	sel, err = MainContent(`<body><aside>skip</aside><p>only body</p></body>`)
	require.NoError(t, err)
	require.Equal(t, "only body", CleanText(sel))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Caf\u00e9\nnext word", Normalize("Cafe\u0301\r\nnext\u00a0word\u200b"))
}

func TestHeadingDepth(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, HeadingDepth("h1"))
	require.Equal(t, 4, HeadingDepth("h4"))
	require.Zero(t, HeadingDepth("h5"))
	require.Zero(t, HeadingDepth("p"))
}

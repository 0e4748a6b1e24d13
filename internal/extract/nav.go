package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

const breadcrumbSelector = ".breadcrumb li, nav.breadcrumb li, .breadcrumbs li"

type navLevel struct {
	list    *goquery.Selection
	depth   int
	parents []string
}

// navTree walks the first <nav> breadth-first. Each <li> yields an item whose
// breadcrumbs are its ancestors' titles plus its own; nested lists sit one
// level deeper.
func navTree(doc *goquery.Document, pageURL string) []NavItem {
	nav := doc.Find("nav").First()
	if nav.Length() == 0 {
		return nil
	}

	var out []NavItem
	queue := []navLevel{{list: nav, depth: 0}}
	for len(queue) > 0 {
		level := queue[0]
		queue = queue[1:]

		levelItems(level.list).Each(func(_ int, li *goquery.Selection) {
			title, link := navEntry(li, pageURL)
			crumbs := make([]string, 0, len(level.parents)+1)
			crumbs = append(crumbs, level.parents...)
			crumbs = append(crumbs, title)

			out = append(out, NavItem{
				Title:       title,
				URL:         link,
				Breadcrumbs: crumbs,
				Depth:       level.depth,
			})
			li.ChildrenFiltered("ul, ol").Each(func(_ int, child *goquery.Selection) {
				queue = append(queue, navLevel{list: child, depth: level.depth + 1, parents: crumbs})
			})
		})
	}
	return out
}

// levelItems returns the <li> elements of one navigation level. The <nav>
// root usually wraps its items in a list, so direct lists are looked through.
func levelItems(list *goquery.Selection) *goquery.Selection {
	items := list.ChildrenFiltered("li")
	if goquery.NodeName(list) == "nav" {
		items = items.AddSelection(list.ChildrenFiltered("ul, ol").ChildrenFiltered("li"))
	}
	return items
}

func navEntry(li *goquery.Selection, pageURL string) (string, *string) {
	anchor := li.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return a.ParentsUntilSelection(li).Filter("ul, ol").Length() == 0
	}).First()
	if anchor.Length() == 0 {
		own := li.Clone()
		own.Find("ul, ol").Remove()
		return CleanText(own), nil
	}
	title := CleanText(anchor)
	href, _ := anchor.Attr("href")
	resolved, ok := urlnorm.Resolve(pageURL, href)
	if !ok {
		return title, nil
	}
	return title, &resolved
}

func breadcrumbs(doc *goquery.Document) []string {
	var out []string
	doc.Find(breadcrumbSelector).Each(func(_ int, s *goquery.Selection) {
		if text := CleanText(s); text != "" {
			out = append(out, text)
		}
	})
	return out
}

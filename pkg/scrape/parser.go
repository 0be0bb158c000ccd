package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// codeSelectors hold no rendered text; chromeSelectors are rendered
// boilerplate. Both are stripped before extracting article text.
const (
	codeSelectors       = "script, style, iframe, noscript"
	chromeSelectors     = "nav, header, footer, aside, form"
	nonContentSelectors = codeSelectors + ", " + chromeSelectors
)

// contentSelectors are tried in order when locating the main content block.
var contentSelectors = []string{
	"article",
	"main",
	".content",
	".post-content",
	".entry-content",
	"[role='main']",
}

// articleLinkPatterns match URLs that look like individual posts.
var articleLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/blog/`),
	regexp.MustCompile(`/post/`),
	regexp.MustCompile(`/article/`),
	regexp.MustCompile(`/news/`),
	regexp.MustCompile(`/insights/`),
	regexp.MustCompile(`/\d{4}/\d{2}/`),
}

const (
	// minLinkTitleLen filters out "Read more" style anchors.
	minLinkTitleLen = 10
	maxArticleLinks = 10

	// minExtractChars is the floor below which selector extraction is
	// considered thin and readability takes over.
	minExtractChars = 200
)

// Link is one harvested article link.
type Link struct {
	Title string
	URL   string
}

// ExtractArticleLinks harvests likely article links from a listing page.
// Links must resolve to the same host as the base URL and carry a title long
// enough to look like a post.
func ExtractArticleLinks(baseURL string, html []byte) []Link {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if len(links) >= maxArticleLinks {
			return
		}
		href := s.AttrOr("href", "")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !sameHost(base.Host, resolved.Host) {
			return
		}
		resolved.Fragment = ""
		full := resolved.String()
		if seen[full] || !looksLikeArticle(resolved.Path) {
			return
		}

		title := collapseWhitespace(s.Text())
		if len(title) <= minLinkTitleLen {
			return
		}
		seen[full] = true
		links = append(links, Link{Title: title, URL: full})
	})
	return links
}

func looksLikeArticle(path string) bool {
	for _, p := range articleLinkPatterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

func sameHost(a, b string) bool {
	return strings.TrimPrefix(a, "www.") == strings.TrimPrefix(b, "www.")
}

// ExtractArticle pulls the title and main text out of one page. Selector
// extraction runs first; when it comes back thin, readability reprocesses the
// full document.
func ExtractArticle(pageURL string, html []byte) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err == nil {
		title = collapseWhitespace(doc.Find("title").First().Text())
		if title == "" {
			title = collapseWhitespace(doc.Find("h1").First().Text())
		}
		text = extractMainText(doc)
	}

	if len(text) < minExtractChars {
		if rTitle, rText := readabilityFallback(pageURL, html); len(rText) > len(text) {
			text = rText
			if rTitle != "" {
				title = rTitle
			}
		}
	}
	return title, text
}

func extractMainText(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		container.Find(nonContentSelectors).Remove()
		if text := collapseWhitespace(container.Text()); len(text) >= minExtractChars {
			return text
		}
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	body.Find(nonContentSelectors).Remove()
	return collapseWhitespace(body.Text())
}

// readabilityFallback runs a readability-style extractor over the full
// document. Returns empty strings if it fails or yields nothing.
func readabilityFallback(pageURL string, html []byte) (title, text string) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		return "", ""
	}
	return collapseWhitespace(article.Title), collapseWhitespace(article.TextContent)
}

// BoilerplateRatio measures how much of a page's rendered text disappears
// when navigation chrome is stripped. 0 means all content, 1 means all
// boilerplate. Script and style text never counts as rendered text.
func BoilerplateRatio(html []byte) float64 {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return 0
	}
	body.Find(codeSelectors).Remove()

	total := len(collapseWhitespace(body.Text()))
	if total == 0 {
		return 0
	}
	body.Find(chromeSelectors).Remove()
	content := len(collapseWhitespace(body.Text()))
	if content > total {
		return 0
	}
	return float64(total-content) / float64(total)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

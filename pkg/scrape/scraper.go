package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// blogPaths are probed in order on the site root. The first listing page
// that yields at least one article link wins.
var blogPaths = []string{
	"/blog", "/blog/",
	"/news", "/news/",
	"/insights", "/insights/",
	"/resources", "/resources/",
	"/articles", "/articles/",
	"/posts", "/posts/",
	"/updates", "/updates/",
}

// ScraperOptions controls how much content one site scrape collects.
type ScraperOptions struct {
	MaxArticles     int
	MaxContentChars int

	// ExcerptChars is how much of each article feeds the summary.
	ExcerptChars int
}

func (o ScraperOptions) withDefaults() ScraperOptions {
	if o.MaxArticles <= 0 {
		o.MaxArticles = 3
	}
	if o.MaxContentChars <= 0 {
		o.MaxContentChars = 2000
	}
	if o.ExcerptChars <= 0 {
		o.ExcerptChars = 500
	}
	return o
}

// Scraper discovers a site's blog, extracts recent articles, and condenses
// them into a summary sized for a prompt.
type Scraper struct {
	fetcher *Fetcher
	opts    ScraperOptions
	log     *zap.Logger
}

// NewScraper creates a Scraper on top of the given fetcher.
func NewScraper(fetcher *Fetcher, opts ScraperOptions, log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scraper{fetcher: fetcher, opts: opts.withDefaults(), log: log}
}

// Scrape collects content for one website. Blog discovery failures degrade
// to scraping the homepage; only a completely unreachable site is an error.
func (s *Scraper) Scrape(ctx context.Context, website string) (models.SiteContent, error) {
	base := strings.TrimRight(NormalizeURL(website), "/")
	content := models.SiteContent{
		SiteKey:   models.SiteKey(website),
		FetchedAt: time.Now().UTC(),
	}

	var ratios []float64

	blogURL, links, blogRatio := s.findBlog(ctx, base)
	if blogURL != "" {
		content.BlogURL = blogURL
		ratios = append(ratios, blogRatio)
		for _, link := range links {
			if len(content.Articles) >= s.opts.MaxArticles {
				break
			}
			article, ratio, err := s.fetchArticle(ctx, link)
			if err != nil {
				s.log.Debug("article fetch failed",
					zap.String("url", link.URL), zap.Error(err))
				continue
			}
			content.Articles = append(content.Articles, article)
			ratios = append(ratios, ratio)
		}
	}

	// No blog or nothing readable on it: fall back to the homepage itself.
	if len(content.Articles) == 0 {
		article, ratio, err := s.fetchArticle(ctx, Link{URL: base})
		if err != nil {
			if blogURL == "" {
				return content, fmt.Errorf("scrape %s: %w", content.SiteKey, err)
			}
		} else if article.Text != "" {
			content.Articles = append(content.Articles, article)
			ratios = append(ratios, ratio)
		}
	}

	content.Summary = s.buildSummary(content.Articles)
	content.BoilerplateRatio = average(ratios)

	s.log.Info("site scraped",
		zap.String("site_key", content.SiteKey),
		zap.String("blog_url", content.BlogURL),
		zap.Int("articles", len(content.Articles)),
		zap.Int("summary_chars", len(content.Summary)),
		zap.Float64("boilerplate_ratio", content.BoilerplateRatio))
	return content, nil
}

// findBlog probes the common blog paths and returns the first listing page
// with article links, along with the harvested links.
func (s *Scraper) findBlog(ctx context.Context, base string) (string, []Link, float64) {
	for _, path := range blogPaths {
		if ctx.Err() != nil {
			return "", nil, 0
		}
		page, err := s.fetcher.Fetch(ctx, base+path)
		if err != nil {
			continue
		}
		if links := ExtractArticleLinks(page.URL, page.Body); len(links) > 0 {
			return page.URL, links, BoilerplateRatio(page.Body)
		}
	}
	return "", nil, 0
}

func (s *Scraper) fetchArticle(ctx context.Context, link Link) (models.Article, float64, error) {
	page, err := s.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		return models.Article{}, 0, err
	}

	title, text := ExtractArticle(page.URL, page.Body)
	if title == "" {
		title = link.Title
	}
	return models.Article{
		Title:     title,
		URL:       page.URL,
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}, BoilerplateRatio(page.Body), nil
}

// buildSummary condenses articles into the prompt-sized digest: an excerpt
// per article, separated, truncated to the configured ceiling.
func (s *Scraper) buildSummary(articles []models.Article) string {
	if len(articles) == 0 {
		return ""
	}

	parts := make([]string, 0, len(articles))
	for _, a := range articles {
		excerpt := truncateRunes(a.Text, s.opts.ExcerptChars)
		if a.Title != "" {
			parts = append(parts, "Title: "+a.Title+"\n"+excerpt)
		} else {
			parts = append(parts, excerpt)
		}
	}

	summary := strings.Join(parts, "\n\n---\n\n")
	if len(summary) > s.opts.MaxContentChars {
		summary = truncateRunes(summary, s.opts.MaxContentChars) + "..."
	}
	return summary
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

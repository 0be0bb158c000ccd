package models

import (
	"strings"
	"time"
)

// Article is one piece of extracted site content.
type Article struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// SiteContent is everything scraped for one site key. It is the cache
// payload: a single fetch produces one SiteContent, and every contact that
// shares the site key reuses it until the entry expires.
type SiteContent struct {
	SiteKey          string    `json:"site_key"`
	BlogURL          string    `json:"blog_url,omitempty"`
	Articles         []Article `json:"articles,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	BoilerplateRatio float64   `json:"boilerplate_ratio"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Empty reports whether the scrape produced no usable text at all.
func (s SiteContent) Empty() bool {
	return len(s.Articles) == 0 && strings.TrimSpace(s.Summary) == ""
}

// TotalWords sums the word counts of all extracted articles.
func (s SiteContent) TotalWords() int {
	var n int
	for _, a := range s.Articles {
		n += a.WordCount
	}
	return n
}

// Package analyze decides whether scraped content can support a
// personalized opener.
package analyze

import (
	"fmt"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// Quality classifies scraped content.
type Quality string

const (
	QualityGood Quality = "good"
	QualityLow  Quality = "low_quality"
)

// Options holds classification thresholds.
type Options struct {
	// MinArticleWords is the substance floor: at least one article must
	// reach it.
	MinArticleWords int
	// MaxBoilerplateRatio rejects pages that are mostly chrome.
	MaxBoilerplateRatio float64
	// MinSummaryChars is the floor for a summary to be worth prompting with.
	MinSummaryChars int
}

func (o Options) withDefaults() Options {
	if o.MinArticleWords <= 0 {
		o.MinArticleWords = 100
	}
	if o.MaxBoilerplateRatio <= 0 {
		o.MaxBoilerplateRatio = 0.65
	}
	if o.MinSummaryChars <= 0 {
		o.MinSummaryChars = 50
	}
	return o
}

// Analyzer classifies site content. It performs no I/O; identical content
// always classifies identically.
type Analyzer struct {
	opts Options
}

// New creates an Analyzer with the given thresholds.
func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts.withDefaults()}
}

// Classify returns the quality of the content and, for low quality, the
// reason it fell short.
func (a *Analyzer) Classify(content models.SiteContent) (Quality, string) {
	if content.Empty() {
		return QualityLow, "no content extracted"
	}

	var best int
	for _, article := range content.Articles {
		if article.WordCount > best {
			best = article.WordCount
		}
	}
	if best < a.opts.MinArticleWords {
		return QualityLow, fmt.Sprintf("longest article %d words, need %d", best, a.opts.MinArticleWords)
	}

	if content.BoilerplateRatio > a.opts.MaxBoilerplateRatio {
		return QualityLow, fmt.Sprintf("boilerplate ratio %.2f over %.2f", content.BoilerplateRatio, a.opts.MaxBoilerplateRatio)
	}

	return QualityGood, ""
}

// Usable reports whether the content is good enough to feed the AI path:
// classified good with a summary of real size.
func (a *Analyzer) Usable(content models.SiteContent) bool {
	quality, _ := a.Classify(content)
	return quality == QualityGood && len(content.Summary) > a.opts.MinSummaryChars
}

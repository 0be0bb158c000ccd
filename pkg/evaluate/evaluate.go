// Package evaluate scores generated openers for AI-writing artifacts and
// style violations. The rule stage is deterministic and always runs; an
// AI-judged second opinion can be layered on top and only ever adds to the
// other-issues bucket.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Ebop14/outreach-bot/pkg/generate"
	"github.com/Ebop14/outreach-bot/pkg/models"
)

// aiPhrases are writing tells common in machine-generated text. Matching is
// case-insensitive substring.
var aiPhrases = []string{
	"I hope this email finds you well",
	"I trust this message finds you",
	"delve into",
	"it is worth noting",
	"it is important to note",
	"in today's fast-paced",
	"in this digital age",
	"in today's world",
	"paradigm shift",
	"game changer",
	"cutting-edge",
	"state-of-the-art",
	"revolutionary",
	"groundbreaking",
	"synergy",
	"leverage",
	"circle back",
	"touch base",
}

// weakQualifiers per Strunk and White.
var weakQualifiers = []string{
	"rather",
	"very",
	"little",
	"pretty",
	"quite",
	"somewhat",
	"fairly",
	"really",
	"truly",
	"basically",
	"actually",
	"literally",
}

var passivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bis\s+\w+ed\b`),
	regexp.MustCompile(`(?i)\bare\s+\w+ed\b`),
	regexp.MustCompile(`(?i)\bwas\s+\w+ed\b`),
	regexp.MustCompile(`(?i)\bwere\s+\w+ed\b`),
	regexp.MustCompile(`(?i)\bbeen\s+\w+ed\b`),
	regexp.MustCompile(`(?i)\bbe\s+\w+ed\b`),
}

var vaguePhrases = []string{
	"and more",
	"and so on",
	"etc.",
	"various",
	"numerous",
	"several",
	"many",
	"a lot of",
	"a number of",
}

// repetitionStopWords are frequent words exempt from the repetition check.
var repetitionStopWords = map[string]bool{
	"that": true,
	"with": true,
	"your": true,
	"have": true,
}

const (
	maxSentenceWords   = 25
	maxTotalWords      = 150
	minRepetitionChars = 4
	repetitionFloor    = 3
)

var (
	wordRe     = regexp.MustCompile(`\b\w+\b`)
	sentenceRe = regexp.MustCompile(`[.!?]+`)
)

// Completer issues a single chat completion. *generate.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, tier generate.Tier, system, user string) (string, error)
}

// Options configures an Evaluator.
type Options struct {
	// Threshold is the minimum acceptable score. Defaults to 70.
	Threshold int
	// Completer, when set, enables the AI second opinion.
	Completer Completer
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = 70
	}
	return o
}

// Evaluator applies the rule checks and scoring to opener text.
type Evaluator struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{opts: opts.withDefaults(), log: log}
}

// Threshold returns the minimum acceptable score.
func (e *Evaluator) Threshold() int {
	return e.opts.Threshold
}

// Evaluate scores text and itemizes findings. The score is
// 100 - (ai*3 + style*2 + other*1) * 5, floored at zero; acceptable means
// score >= threshold. Deterministic apart from the optional second opinion,
// whose failure is logged and ignored.
func (e *Evaluator) Evaluate(ctx context.Context, text string) models.EvaluationResult {
	lower := strings.ToLower(text)
	words := wordRe.FindAllString(lower, -1)

	var aiIndicators, styleViolations, otherIssues []string

	aiIndicators = append(aiIndicators, checkAIPhrases(lower)...)

	styleViolations = append(styleViolations, checkQualifiers(words)...)
	styleViolations = append(styleViolations, checkPassiveVoice(text)...)
	styleViolations = append(styleViolations, checkVagueLanguage(lower)...)
	styleViolations = append(styleViolations, checkSentenceLength(text)...)

	otherIssues = append(otherIssues, checkRepetition(words)...)
	otherIssues = append(otherIssues, checkTotalLength(text)...)

	if e.opts.Completer != nil {
		otherIssues = append(otherIssues, e.secondOpinion(ctx, text)...)
	}

	penalty := (len(aiIndicators)*3 + len(styleViolations)*2 + len(otherIssues)) * 5
	score := 100 - penalty
	if score < 0 {
		score = 0
	}

	result := models.EvaluationResult{
		Score:           score,
		Acceptable:      score >= e.opts.Threshold,
		AIIndicators:    aiIndicators,
		StyleViolations: styleViolations,
		OtherIssues:     otherIssues,
	}

	e.log.Debug("evaluated opener",
		zap.Int("score", score),
		zap.Bool("acceptable", result.Acceptable),
		zap.Int("ai_indicators", len(aiIndicators)),
		zap.Int("style_violations", len(styleViolations)),
		zap.Int("other_issues", len(otherIssues)))
	for _, f := range result.Findings() {
		e.log.Debug("finding", zap.String("issue", f))
	}

	return result
}

func checkAIPhrases(lower string) []string {
	var found []string
	for _, phrase := range aiPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			found = append(found, fmt.Sprintf("AI phrase detected: '%s'", phrase))
		}
	}
	return found
}

func checkQualifiers(words []string) []string {
	counts := map[string]int{}
	for _, w := range words {
		counts[w]++
	}
	var found []string
	for _, q := range weakQualifiers {
		if n := counts[q]; n > 0 {
			found = append(found, fmt.Sprintf("Weak qualifier used %dx: '%s'", n, q))
		}
	}
	return found
}

// checkPassiveVoice reports at most one finding regardless of how many
// constructions match.
func checkPassiveVoice(text string) []string {
	for _, re := range passivePatterns {
		if matches := re.FindAllString(text, -1); len(matches) > 0 {
			return []string{fmt.Sprintf("Passive voice detected: %d instance(s)", len(matches))}
		}
	}
	return nil
}

func checkVagueLanguage(lower string) []string {
	var found []string
	for _, phrase := range vaguePhrases {
		if strings.Contains(lower, phrase) {
			found = append(found, fmt.Sprintf("Vague language: '%s'", phrase))
		}
	}
	return found
}

// checkSentenceLength reports one finding per sentence over the word cap.
func checkSentenceLength(text string) []string {
	var found []string
	for _, sentence := range sentenceRe.Split(text, -1) {
		n := len(strings.Fields(sentence))
		if n > maxSentenceWords {
			found = append(found, fmt.Sprintf("Sentence too long (%d words)", n))
		}
	}
	return found
}

// checkRepetition reports words of four or more characters used more than
// three times, in first-appearance order.
func checkRepetition(words []string) []string {
	counts := map[string]int{}
	for _, w := range words {
		if len(w) >= minRepetitionChars {
			counts[w]++
		}
	}
	var found []string
	seen := map[string]bool{}
	for _, w := range words {
		if len(w) < minRepetitionChars || seen[w] || repetitionStopWords[w] {
			continue
		}
		seen[w] = true
		if counts[w] > repetitionFloor {
			found = append(found, fmt.Sprintf("Repetitive: '%s' used %dx", w, counts[w]))
		}
	}
	return found
}

func checkTotalLength(text string) []string {
	n := len(strings.Fields(text))
	if n > maxTotalWords {
		return []string{fmt.Sprintf("Email too long (%d words, aim for <%d)", n, maxTotalWords)}
	}
	return nil
}

const secondOpinionSystem = "You are an expert writing evaluator focused on detecting AI-generated text and applying Strunk and White principles."

const secondOpinionPrompt = `Review this cold outreach opener for quality problems.

%s

Check for signs of AI-generated writing, wordiness, lack of specificity, and sales-y or inauthentic language. Return a JSON array of short issue descriptions, one string per problem found, for example:
["generic praise with no specific reference", "overly formal tone"]

Return [] if the text reads natural. Return only the JSON array.`

// secondOpinion asks the model to critique the text. Failures never block
// evaluation; the rule findings stand on their own.
func (e *Evaluator) secondOpinion(ctx context.Context, text string) []string {
	raw, err := e.opts.Completer.Complete(ctx, generate.TierStandard, secondOpinionSystem, fmt.Sprintf(secondOpinionPrompt, text))
	if err != nil {
		e.log.Debug("second opinion unavailable", zap.Error(err))
		return nil
	}
	return parseFindings(raw)
}

// parseFindings extracts a JSON string array from a model reply, tolerating
// surrounding prose or code fences.
func parseFindings(raw string) []string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &items); err != nil {
		return nil
	}
	var findings []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			findings = append(findings, item)
		}
	}
	return findings
}

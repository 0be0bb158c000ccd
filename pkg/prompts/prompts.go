// Package prompts holds the opener prompt catalog: ten ordered variants,
// each a different angle on the same scraped content.
package prompts

import (
	"fmt"
	"strings"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// SystemPrompt frames every opener generation call.
const SystemPrompt = `You are an expert at writing personalized cold email openers for an AI consultancy. Your openers should:
- Be 1-2 sentences maximum
- Reference something specific from the company's content
- Feel genuine and not salesy
- Create a natural bridge to discussing AI solutions
- Never use generic phrases like "I was impressed by" or "I noticed that"

Output ONLY the opener text, nothing else.`

// Entry is one catalog variant: identity plus its user-prompt template.
// Templates substitute {first_name}, {company}, and {summary}.
type Entry struct {
	Variant     models.Variant
	Name        string
	Description string
	Template    string
}

var catalog = []Entry{
	{
		Variant:     models.VariantDirectReference,
		Name:        "Direct Reference",
		Description: "Directly reference a specific article or topic",
		Template: `Write a cold email opener for {first_name} at {company}.

Their recent content discusses:
{summary}

Reference something specific from their content that relates to AI/automation opportunities.`,
	},
	{
		Variant:     models.VariantProblemFocused,
		Name:        "Problem Focused",
		Description: "Focus on a problem or challenge they might face",
		Template: `Write a cold email opener for {first_name} at {company}.

Based on their content:
{summary}

Identify a challenge they might face that AI could solve, and reference it naturally.`,
	},
	{
		Variant:     models.VariantComplimentInsight,
		Name:        "Compliment + Insight",
		Description: "Compliment their work then add an insight",
		Template: `Write a cold email opener for {first_name} at {company}.

Their recent content:
{summary}

Start with a specific compliment about their content, then add a brief insight about AI potential.`,
	},
	{
		Variant:     models.VariantQuestionBased,
		Name:        "Question Based",
		Description: "Open with a thoughtful question",
		Template: `Write a cold email opener for {first_name} at {company}.

Context from their blog:
{summary}

Ask a thoughtful question based on their content that leads to AI/automation discussion.`,
	},
	{
		Variant:     models.VariantSharedInterest,
		Name:        "Shared Interest",
		Description: "Establish common ground",
		Template: `Write a cold email opener for {first_name} at {company}.

Their content covers:
{summary}

Find common ground between their focus areas and AI solutions. Make it feel like a peer reaching out.`,
	},
	{
		Variant:     models.VariantTrendConnection,
		Name:        "Trend Connection",
		Description: "Connect their work to broader trends",
		Template: `Write a cold email opener for {first_name} at {company}.

Recent content:
{summary}

Connect something from their content to a broader industry trend involving AI/automation.`,
	},
	{
		Variant:     models.VariantSpecificQuote,
		Name:        "Specific Quote",
		Description: "Reference or paraphrase something specific",
		Template: `Write a cold email opener for {first_name} at {company}.

From their blog:
{summary}

Reference or paraphrase a specific point from their content and connect it to AI opportunities.`,
	},
	{
		Variant:     models.VariantFutureFocused,
		Name:        "Future Focused",
		Description: "Focus on future possibilities",
		Template: `Write a cold email opener for {first_name} at {company}.

Their content:
{summary}

Based on where they seem to be heading, mention an AI-related opportunity for their future.`,
	},
	{
		Variant:     models.VariantContrarian,
		Name:        "Contrarian Angle",
		Description: "Offer a slightly different perspective",
		Template: `Write a cold email opener for {first_name} at {company}.

Their recent writing:
{summary}

Offer a thoughtful, slightly different perspective on something they wrote about, related to AI.`,
	},
	{
		Variant:     models.VariantMinimalist,
		Name:        "Minimalist",
		Description: "Ultra-concise, one sentence only",
		Template: `Write a ONE SENTENCE cold email opener for {first_name} at {company}.

Context:
{summary}

Be extremely concise - just one punchy sentence that references their content and hints at AI value.`,
	},
}

var byVariant = func() map[models.Variant]Entry {
	m := make(map[models.Variant]Entry, len(catalog))
	for _, e := range catalog {
		m[e.Variant] = e
	}
	return m
}()

// Catalog returns all entries in catalog order.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the entry for a variant.
func Lookup(v models.Variant) (Entry, error) {
	e, ok := byVariant[v]
	if !ok {
		return Entry{}, fmt.Errorf("unknown variant %q", v)
	}
	return e, nil
}

// Render builds the system and user prompts for one variant.
func Render(v models.Variant, contact models.Contact, summary string) (system, user string, err error) {
	entry, err := Lookup(v)
	if err != nil {
		return "", "", err
	}
	r := strings.NewReplacer(
		"{first_name}", contact.FirstName,
		"{company}", contact.Company,
		"{summary}", summary,
	)
	return SystemPrompt, r.Replace(entry.Template), nil
}

// Sequence returns all variants in retry order starting from initial:
// catalog order from initial, wrapping around, each variant once.
func Sequence(initial models.Variant) []models.Variant {
	all := models.Variants()
	start := 0
	for i, v := range all {
		if v == initial {
			start = i
			break
		}
	}
	out := make([]models.Variant, 0, len(all))
	for i := range all {
		out = append(out, all[(start+i)%len(all)])
	}
	return out
}

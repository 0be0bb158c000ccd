package generate

import (
	"strings"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

// fallbackOpeners are used when AI generation is unavailable or exhausted.
// Selection rotates by variation index.
var fallbackOpeners = []string{
	"I came across {company} and was impressed by your work in the industry.",
	"I've been following {company}'s growth and wanted to reach out.",
	"I noticed {company} is doing interesting things in your space.",
}

// subjectTemplates rotate the same way.
var subjectTemplates = []string{
	"AI opportunities for {company}",
	"Quick question about {company}'s AI strategy",
	"Helping {company} with AI automation",
}

// valueProps is the fixed pitch block between opener and closing.
const valueProps = `I run an AI consultancy that helps companies like yours:
• Build custom AI solutions tailored to your specific workflows
• Reduce operational costs through intelligent automation
• Gain competitive advantage with cutting-edge ML capabilities

We've helped companies achieve 40%+ efficiency gains in their core processes.`

const closing = `Would you be open to a 15-minute call to explore if there's a fit?

Best regards,
[Your Name]
[Your Company]`

// FallbackOpener returns a template opener for the contact. The variation
// index rotates through the available templates.
func FallbackOpener(contact models.Contact, variation int) string {
	template := fallbackOpeners[mod(variation, len(fallbackOpeners))]
	return substitute(template, contact)
}

// Subject returns a subject line for the contact.
func Subject(contact models.Contact, variation int) string {
	template := subjectTemplates[mod(variation, len(subjectTemplates))]
	return substitute(template, contact)
}

// AssembleEmail builds the full outgoing email around an opener.
func AssembleEmail(contact models.Contact, opener string, variation int) (subject, body string) {
	subject = Subject(contact, variation)

	parts := []string{
		"Hi " + contact.FirstName + ",",
		"",
		opener,
		"",
		valueProps,
		"",
		closing,
	}
	return subject, strings.Join(parts, "\n")
}

// TemplateAttempt produces the fallback attempt for a contact. Template
// output is never evaluated.
func TemplateAttempt(contact models.Contact, variation int) models.GenerationAttempt {
	return models.GenerationAttempt{
		Text:   FallbackOpener(contact, variation),
		Source: models.SourceTemplate,
	}
}

func substitute(template string, contact models.Contact) string {
	r := strings.NewReplacer(
		"{company}", contact.Company,
		"{first_name}", contact.FirstName,
	)
	return r.Replace(template)
}

func mod(n, m int) int {
	if m <= 0 {
		return 0
	}
	n %= m
	if n < 0 {
		n += m
	}
	return n
}

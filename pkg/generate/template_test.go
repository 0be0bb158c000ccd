package generate

import (
	"strings"
	"testing"

	"github.com/Ebop14/outreach-bot/pkg/models"
)

func TestFallbackOpenerRotation(t *testing.T) {
	contact := models.Contact{FirstName: "Jane", Company: "Acme"}

	seen := map[string]bool{}
	for v := range 3 {
		opener := FallbackOpener(contact, v)
		if !strings.Contains(opener, "Acme") {
			t.Errorf("variation %d: company not substituted: %q", v, opener)
		}
		if strings.Contains(opener, "{company}") {
			t.Errorf("variation %d: leftover placeholder: %q", v, opener)
		}
		seen[opener] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct openers, got %d", len(seen))
	}

	if FallbackOpener(contact, 3) != FallbackOpener(contact, 0) {
		t.Error("variation index should wrap")
	}
	if FallbackOpener(contact, -1) != FallbackOpener(contact, 2) {
		t.Error("negative variation should wrap backwards")
	}
}

func TestSubjectRotation(t *testing.T) {
	contact := models.Contact{Company: "Acme"}

	if got := Subject(contact, 0); got != "AI opportunities for Acme" {
		t.Errorf("unexpected subject: %q", got)
	}
	if Subject(contact, 4) != Subject(contact, 1) {
		t.Error("variation index should wrap")
	}
}

func TestAssembleEmail(t *testing.T) {
	contact := models.Contact{FirstName: "Jane", Company: "Acme"}
	opener := "Loved your piece on caching."

	subject, body := AssembleEmail(contact, opener, 0)
	if subject == "" {
		t.Fatal("expected subject")
	}

	if !strings.HasPrefix(body, "Hi Jane,\n\n") {
		t.Errorf("body should open with greeting, got %q", body[:20])
	}
	if !strings.Contains(body, "\n\n"+opener+"\n\n") {
		t.Error("opener should sit alone between greeting and pitch")
	}
	if !strings.Contains(body, "40%+ efficiency gains") {
		t.Error("body missing value props")
	}
	if !strings.HasSuffix(body, "[Your Name]\n[Your Company]") {
		t.Error("body missing closing signature")
	}

	greeting := strings.Index(body, "Hi Jane,")
	pitch := strings.Index(body, "I run an AI consultancy")
	call := strings.Index(body, "15-minute call")
	if !(greeting < pitch && pitch < call) {
		t.Error("sections out of order")
	}
}

func TestTemplateAttempt(t *testing.T) {
	contact := models.Contact{FirstName: "Jane", Company: "Acme"}

	attempt := TemplateAttempt(contact, 1)
	if attempt.Source != models.SourceTemplate {
		t.Errorf("expected template source, got %s", attempt.Source)
	}
	if attempt.Variant != 0 {
		t.Error("template attempts carry no prompt variant")
	}
	if attempt.Text == "" {
		t.Error("expected opener text")
	}
}

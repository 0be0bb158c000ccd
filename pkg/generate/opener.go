package generate

import "strings"

// openerPrefixes are boilerplate lead-ins models add despite instructions.
var openerPrefixes = []string{
	"Here's an opener:",
	"Opener:",
	"Email opener:",
	"Here is",
}

// CleanOpener strips wrapping quotes and boilerplate prefixes from model
// output.
func CleanOpener(opener string) string {
	opener = strings.TrimSpace(opener)

	if len(opener) >= 2 {
		if (strings.HasPrefix(opener, `"`) && strings.HasSuffix(opener, `"`)) ||
			(strings.HasPrefix(opener, `'`) && strings.HasSuffix(opener, `'`)) {
			opener = opener[1 : len(opener)-1]
		}
	}

	for _, prefix := range openerPrefixes {
		if len(opener) >= len(prefix) && strings.EqualFold(opener[:len(prefix)], prefix) {
			opener = strings.TrimSpace(opener[len(prefix):])
		}
	}

	return strings.TrimSpace(opener)
}

package models

import (
	"fmt"
	"strings"
)

// Contact is one prospect row from the input CSV. It is read-only to the
// pipeline; the loader owns construction.
type Contact struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Website   string `json:"website"`
	Title     string `json:"title,omitempty"`
	RowIndex  int    `json:"row_index"`
}

// FullName returns the contact's display name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// SiteKey returns the normalized cache identity for the contact's website.
func (c Contact) SiteKey() string {
	return SiteKey(c.Website)
}

// Validate reports the required fields that are missing. A contact that fails
// validation cannot be processed at all, not even by the template generator.
func (c Contact) Validate() error {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"email", c.Email},
		{"first_name", c.FirstName},
		{"last_name", c.LastName},
		{"company", c.Company},
		{"website", c.Website},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SiteKey normalizes a website URL to its cache identity: lowercase domain
// with scheme, path, and leading www. stripped. "https://www.Acme.io/blog/"
// and "acme.io" map to the same key.
func SiteKey(website string) string {
	key := strings.ToLower(strings.TrimSpace(website))
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	if i := strings.IndexAny(key, "/?#"); i >= 0 {
		key = key[:i]
	}
	key = strings.TrimPrefix(key, "www.")
	return key
}

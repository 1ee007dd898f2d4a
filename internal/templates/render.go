package templates

import (
	"regexp"
	"strings"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
)

var tokenRe = regexp.MustCompile(`\{\{\s*([A-Za-z_]+)\s*\}\}`)

// Render merges a subject/body template with a lead's field values. Tokens are
// case-insensitive; unknown or empty fields render as empty strings. Pure and
// total: malformed tokens pass through unchanged, nothing ever fails.
func Render(subject, body string, lead models.Lead) (string, string) {
	fields := leadFields(lead)
	return substitute(subject, fields), substitute(body, fields)
}

func substitute(text string, fields map[string]string) string {
	if text == "" {
		return ""
	}
	return tokenRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := tokenRe.FindStringSubmatch(match)
		if len(sub) != 2 {
			return ""
		}
		return fields[strings.ToLower(sub[1])]
	})
}

func leadFields(lead models.Lead) map[string]string {
	first := deref(lead.FirstName)
	last := deref(lead.LastName)

	fullName := strings.TrimSpace(first + " " + last)

	return map[string]string{
		"first_name": first,
		"last_name":  last,
		"full_name":  fullName,
		"company":    deref(lead.Company),
		"title":      deref(lead.Title),
		"email":      deref(lead.Email),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

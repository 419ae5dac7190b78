// Package sanitize strips markup from user-supplied text before it is stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Policy removes all HTML. The zero value is not usable; call New.
type Policy struct {
	strict *bluemonday.Policy
}

func New() *Policy {
	return &Policy{strict: bluemonday.StrictPolicy()}
}

// Text returns s with tags removed and surrounding space trimmed. Entities
// escaped by the policy are decoded again; responses are JSON, not HTML.
func (p *Policy) Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(p.strict.Sanitize(s)))
}

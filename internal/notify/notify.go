// Package notify decides whether a post should trigger a keyword notification.
// Delivery is out of scope; callers only surface the decision.
package notify

import "strings"

// DefaultKeywords are used when none are configured.
var DefaultKeywords = []string{"cricket", "science"}

// Matcher holds a normalised keyword list. The zero value matches nothing.
type Matcher struct {
	keywords []string
}

// NewMatcher lower-cases and trims keywords, dropping empty and repeated ones.
func NewMatcher(keywords []string) *Matcher {
	seen := make(map[string]bool, len(keywords))
	m := &Matcher{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		m.keywords = append(m.keywords, k)
	}
	return m
}

// Keywords returns a copy of the normalised list.
func (m *Matcher) Keywords() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keywords...)
}

// Match returns the first keyword contained in body, case-insensitively.
func (m *Matcher) Match(body string) (string, bool) {
	if m == nil || len(m.keywords) == 0 {
		return "", false
	}
	lower := strings.ToLower(body)
	for _, k := range m.keywords {
		if strings.Contains(lower, k) {
			return k, true
		}
	}
	return "", false
}

// ShouldNotify reports whether body contains any keyword.
func (m *Matcher) ShouldNotify(body string) bool {
	_, ok := m.Match(body)
	return ok
}

// validate/email.go
package validate

import (
	"regexp"
	"strings"
)

// EmailPattern is the unanchored email grammar:
//
//	local  := atom ("." atom)*
//	atom   := [a-z0-9!#$%&'*+/=?^_`{|}~-]+
//	domain := (label ".")+ label
//	label  := [a-z0-9] ([a-z0-9-]* [a-z0-9])?
//
// Letters are lowercase only. Go raw strings cannot hold a backtick, hence
// the concatenation.
const EmailPattern = `[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+(?:\.[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+)*` +
	`@(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?`

var (
	strictEmailRegex = regexp.MustCompile(anchor(EmailPattern))

	// (?i) is not used here: RE2 case folding lets [a-z] match U+212A (Kelvin)
	// and U+017F (long s), which would admit non-ASCII input.
	foldedEmailRegex = regexp.MustCompile(anchor(strings.ReplaceAll(EmailPattern, "a-z", "a-zA-Z")))
)

// anchor wraps a pattern so that MatchString only succeeds on a full-span match.
func anchor(p string) string {
	return `^(?:` + p + `)$`
}

// IsValidEmail reports whether s is, in its entirety, an email address under
// EmailPattern.
//
// Known limitation: uppercase letters are rejected, so "User@Example.com" is
// invalid. Use NewEmailMatcher(WithCaseInsensitive()) when mixed case input
// must be accepted. No length limits are applied and the input is never
// trimmed or folded.
func IsValidEmail(s string) bool {
	return strictEmailRegex.MatchString(s)
}

// EmailMatcher matches the email grammar in strict or case-insensitive mode.
// The zero value is not usable; construct with NewEmailMatcher.
// An EmailMatcher is immutable and safe for concurrent use.
type EmailMatcher struct {
	re              *regexp.Regexp
	caseInsensitive bool
}

// EmailOption configures an EmailMatcher.
type EmailOption func(*EmailMatcher)

// WithCaseInsensitive also accepts ASCII uppercase letters anywhere a
// lowercase letter is allowed. Non-ASCII letters are still rejected.
func WithCaseInsensitive() EmailOption {
	return func(m *EmailMatcher) {
		m.caseInsensitive = true
	}
}

// NewEmailMatcher returns a matcher. Without options it behaves exactly
// like IsValidEmail.
func NewEmailMatcher(opts ...EmailOption) *EmailMatcher {
	m := &EmailMatcher{}
	for _, opt := range opts {
		opt(m)
	}
	m.re = strictEmailRegex
	if m.caseInsensitive {
		m.re = foldedEmailRegex
	}
	return m
}

// Match reports whether s is, in its entirety, a valid email address.
func (m *EmailMatcher) Match(s string) bool {
	return m.re.MatchString(s)
}

// CaseInsensitive reports whether the matcher accepts uppercase letters.
func (m *EmailMatcher) CaseInsensitive() bool {
	return m.caseInsensitive
}

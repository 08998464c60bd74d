// Package heuristics holds the pure field-level rules used to clean lead
// records: email syntax and repair, domain extraction, and splitting of
// compound Italian locality strings.
package heuristics

import (
	"regexp"
	"strings"
)

// emailPattern anchors both ends: trailing garbage after an otherwise valid
// address makes the whole value invalid.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9_.+-]+@[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)

// IsValidEmail reports whether s is a syntactically valid address.
func IsValidEmail(s string) bool {
	if s == "" {
		return false
	}
	return emailPattern.MatchString(s)
}

// SuggestEmailFix proposes a corrected address by swapping the domain of
// email for the first candidate whose leading three characters prefix it.
// Empty candidates are skipped. The boolean is false when email has no "@"
// or no candidate matches.
func SuggestEmailFix(email string, candidates []string) (string, bool) {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "", false
	}
	domain = strings.ToLower(strings.TrimSpace(domain))

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if strings.HasPrefix(domain, prefix3(c)) {
			return local + "@" + c, true
		}
	}
	return "", false
}

func prefix3(s string) string {
	r := []rune(s)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}

// EmailDomain returns the part after the first "@", or "" when absent.
func EmailDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return domain
}

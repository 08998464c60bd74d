package heuristics

import (
	"regexp"
	"strings"
)

var (
	schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	hostPart     = regexp.MustCompile(`(?:www\.)?([^/]+)`)
)

// ExtractDomain reduces a URL-like value to its host part: scheme and a
// leading "www." are dropped, and everything from the first "/" on is cut.
// Values with nothing to extract are returned unchanged.
func ExtractDomain(url string) string {
	if url == "" {
		return ""
	}
	rest := schemePrefix.ReplaceAllString(strings.TrimSpace(url), "")
	m := hostPart.FindStringSubmatch(rest)
	if m == nil {
		return url
	}
	return m[1]
}

package heuristics

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	capPattern      = regexp.MustCompile(`\d{4,5}`)
	provincePattern = regexp.MustCompile(`\b[A-Z]{2}\b`)
	fiveDigits      = regexp.MustCompile(`\d{5}`)
	multiSpace      = regexp.MustCompile(`\s{2,}`)
)

// CityParts is the decomposition of a compound locality string.
// Empty CAP or Province means the token was not present.
type CityParts struct {
	City     string
	CAP      string
	Province string
}

// SplitCity extracts a postal code (first 4-5 digit run) and a province
// code (first standalone pair of uppercase letters) from s. Both tokens are
// located on the original string and cut out by position, postal code
// first; the trimmed remainder is the city.
func SplitCity(s string) CityParts {
	var parts CityParts
	if s == "" {
		return parts
	}

	capLoc := capPattern.FindStringIndex(s)
	provLoc := provincePattern.FindStringIndex(s)

	city := s
	if capLoc != nil {
		parts.CAP = s[capLoc[0]:capLoc[1]]
		city = cut(city, capLoc)
	}
	if provLoc != nil {
		parts.Province = s[provLoc[0]:provLoc[1]]
		if capLoc != nil && capLoc[1] <= provLoc[0] {
			// Shift past the separator that replaced the postal code.
			shift := capLoc[1] - capLoc[0] - 1
			provLoc = []int{provLoc[0] - shift, provLoc[1] - shift}
		}
		city = cut(city, provLoc)
	}

	parts.City = strings.TrimSpace(multiSpace.ReplaceAllString(city, " "))
	return parts
}

// cut replaces s[span] with a single space.
func cut(s string, span []int) string {
	return s[:span[0]] + " " + s[span[1]:]
}

// CAPFromAddress returns the first 5-digit run in addr, or "".
func CAPFromAddress(addr string) string {
	return fiveDigits.FindString(addr)
}

// StripCAP removes every 5-digit run from addr and trims the result.
func StripCAP(addr string) string {
	return strings.TrimSpace(fiveDigits.ReplaceAllString(addr, ""))
}

// Capitalize upper-cases the first letter of s and leaves the rest as is.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

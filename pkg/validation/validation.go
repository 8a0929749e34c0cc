package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// ISRC: country (2 letters), registrant (3 alphanumeric), year (2
	// digits), designation (5 digits). Separators are optional on input.
	isrcRegex     = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}[0-9]{2}[0-9]{5}$`)
	languageRegex = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)
)

// ValidateISRC validates an ISRC code. Dashes and spaces are stripped before
// matching, casing is normalized.
func ValidateISRC(isrc string) bool {
	normalized := NormalizeISRC(isrc)
	return isrcRegex.MatchString(normalized)
}

// NormalizeISRC strips separators and uppercases the code.
func NormalizeISRC(isrc string) string {
	normalized := strings.ToUpper(strings.TrimSpace(isrc))
	normalized = strings.ReplaceAll(normalized, "-", "")
	return strings.ReplaceAll(normalized, " ", "")
}

// ValidateLanguage validates an ISO 639-1 language tag, optionally with a
// region suffix (e.g. "en", "pt-BR").
func ValidateLanguage(lang string) bool {
	return languageRegex.MatchString(strings.TrimSpace(lang))
}

// HasIrregularCapitalization reports whether a title or artist name uses
// non-standard casing that distributors flag: a run of 4+ uppercase letters,
// or uppercase letters in the middle of a word.
func HasIrregularCapitalization(s string) bool {
	for _, word := range strings.Fields(s) {
		runes := []rune(word)
		upperRun := 0
		for i, r := range runes {
			if unicode.IsUpper(r) {
				upperRun++
				if upperRun > 3 {
					return true
				}
				if i > 0 && unicode.IsLower(runes[i-1]) {
					// mid-word capital, e.g. "SoNg"
					return true
				}
			} else {
				upperRun = 0
			}
		}
	}
	return false
}

// SanitizeString removes potentially harmful characters
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}

package paths

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	typeKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	maxTypeKeyLen  = 64
	folder         = cases.Fold()
)

// StripDiacritics removes combining marks: "Guarnição" -> "Guarnicao"
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName builds the comparison key used to detect duplicate categories.
// Rules:
// - Diacritics stripped
// - Case folded
// - Runs of whitespace collapsed to a single space, ends trimmed
//
// "  Rotisséria " and "ROTISSERIA" share a key.
func NormalizeName(s string) string {
	s = StripDiacritics(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeCode trims surrounding whitespace from an external code
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// NormalizeTypeKey derives a type key from a display label.
// Rules:
// - Diacritics stripped, lower-case
// - Spaces become underscores ("Receitas - Base" -> "receitas_-_base")
// - Allowed characters: a-z, 0-9, _, -
// - Must start with [a-z0-9]
// - Max length: 64 bytes
func NormalizeTypeKey(label string) (string, error) {
	s := strings.ToLower(StripDiacritics(strings.TrimSpace(label)))
	if s == "" {
		return "", fmt.Errorf("type key cannot be empty")
	}

	s = strings.Join(strings.Fields(s), "_")

	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		}
	}
	s = strings.TrimLeft(result.String(), "_-")

	if s == "" {
		return "", fmt.Errorf("type key must start with alphanumeric character")
	}
	if len(s) > maxTypeKeyLen {
		return "", fmt.Errorf("type key exceeds maximum length of %d bytes", maxTypeKeyLen)
	}
	if !typeKeyPattern.MatchString(s) {
		return "", fmt.Errorf("invalid type key format: %s", s)
	}
	return s, nil
}

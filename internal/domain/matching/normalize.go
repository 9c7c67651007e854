package matching

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CanonicalName reformats a remittance name into "First Last" title case.
// A comma marks "Last, First" order; otherwise tokens are taken as given.
func CanonicalName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var tokens []string
	if last, first, ok := strings.Cut(raw, ","); ok {
		tokens = append(strings.Fields(first), strings.Fields(last)...)
	} else {
		tokens = strings.Fields(raw)
	}

	for i, tok := range tokens {
		tokens[i] = titleToken(tok)
	}
	return strings.Join(tokens, " ")
}

// NormalizeName is the comparison form of a name: canonical order,
// collapsed whitespace, lower case.
func NormalizeName(raw string) string {
	return strings.ToLower(CanonicalName(raw))
}

// FullName joins stored first and last names into comparison form.
func FullName(first, last string) string {
	return strings.ToLower(strings.Join(strings.Fields(first+" "+last), " "))
}

func titleToken(tok string) string {
	r, size := utf8.DecodeRuneInString(tok)
	if r == utf8.RuneError {
		return tok
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(tok[size:])
}

package store

import (
	"errors"
	"strings"
	"unicode"
)

// ErrMultipleStatements is returned when a query holds more than one statement.
var ErrMultipleStatements = errors.New("multiple statements are not allowed")

// CheckSingleStatement reports ErrMultipleStatements when a semicolon outside
// literals and comments is followed by anything but whitespace, comments or
// more semicolons. A trailing semicolon is accepted.
//
// Dialects disagree on whether a backslash escapes a quote, so the query is
// scanned both ways and rejected if either reading finds a second statement.
func CheckSingleStatement(query string) error {
	for _, backslashEscapes := range []bool{false, true} {
		if hasSecondStatement(query, backslashEscapes) {
			return ErrMultipleStatements
		}
	}
	return nil
}

func hasSecondStatement(query string, backslashEscapes bool) bool {
	terminated := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case unicode.IsSpace(rune(c)):
			continue
		case c == ';':
			terminated = true
			continue
		case strings.HasPrefix(query[i:], "--"):
			i = indexFrom(query, i, "\n")
			continue
		case strings.HasPrefix(query[i:], "/*"):
			i = indexFrom(query, i+2, "*/") + 1
			continue
		}

		if terminated {
			return true
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			i = closeQuote(query, i, c, backslashEscapes)
		case c == '$':
			if tag := dollarTag(query[i:]); tag != "" {
				i = indexFrom(query, i+len(tag), tag) + len(tag) - 1
			}
		}
	}
	return false
}

// indexFrom returns the index of sub in query at or after from, or len(query).
func indexFrom(query string, from int, sub string) int {
	if from >= len(query) {
		return len(query)
	}
	if end := strings.Index(query[from:], sub); end >= 0 {
		return from + end
	}
	return len(query)
}

// closeQuote returns the index of the quote closing the literal opened at
// start. A doubled quote reads as two adjacent literals.
func closeQuote(query string, start int, quote byte, backslashEscapes bool) int {
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			if backslashEscapes {
				i++
			}
		case quote:
			return i
		}
	}
	return len(query)
}

// dollarTag returns the opening delimiter of a dollar-quoted literal ($$ or
// $tag$) at the start of s, or "".
func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || unicode.IsLetter(rune(c)):
		case c >= '0' && c <= '9' && i > 1:
		default:
			return ""
		}
	}
	return ""
}

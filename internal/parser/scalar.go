package parser

import (
	"regexp"
	"strconv"
	"strings"

	"tablesync/internal/value"
)

var (
	reInt   = regexp.MustCompile(`^[-+]?[0-9]+$`)
	reFloat = regexp.MustCompile(`^[-+]?[0-9]*\.[0-9]+$`)
)

// CoerceScalar interprets a bare token:
//
//	""            -> ""
//	null, ~       -> null
//	true, false   -> bool
//	12, -3, .5    -> number
//	"x", 'x'      -> x (quotes removed)
//
// Anything else is returned as the trimmed string.
func CoerceScalar(raw string) value.Value {
	s := strings.TrimSpace(raw)
	switch s {
	case "":
		return value.Str("")
	case "null", "~":
		return value.Null()
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	if reInt.MatchString(s) || reFloat.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.Num(f)
		}
	}
	if unq, ok := unquote(s); ok {
		return value.Str(unq)
	}
	return value.Str(s)
}

// unquote strips one pair of matching single or double quotes.
func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}

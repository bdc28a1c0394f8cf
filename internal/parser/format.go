// Package parser turns raw pasted or uploaded text into a value tree.
//
// The parsers are deliberately lenient and line oriented. They cover the
// shapes that show up in API dumps, spreadsheets and application logs, not
// the full YAML or XML grammars:
//
//   - json: any single JSON document.
//   - yaml: scalars, block sequences, block mappings and "- key: value"
//     sequence items, indentation measured in spaces (tabs count as two).
//   - tsv: first non-empty line is the header, one record per following line.
//   - log: one record per line, either a JSON object or key=value pairs.
//   - html: every <table> with a header row becomes a list of records.
//
// xml is recognised so it can be rejected with a clear message.
package parser

import (
	"regexp"
	"strings"

	"tablesync/internal/value"
)

// Format is the detected or requested input format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTSV  Format = "tsv"
	FormatLog  Format = "log"
	FormatHTML Format = "html"
	FormatXML  Format = "xml"
)

// ParseFormat maps user input to a Format. Unknown or empty input is auto.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatTSV, FormatLog, FormatHTML, FormatXML:
		return f
	case "yml":
		return FormatYAML
	case "tab", "tsv-text":
		return FormatTSV
	}
	return FormatAuto
}

var (
	reLeadingTag    = regexp.MustCompile(`^<[^>]+>`)
	reTrailingClose = regexp.MustCompile(`</[^>]+>\s*$`)
	reHTMLTable     = regexp.MustCompile(`(?i)<table[\s>]`)
	reLogKey        = regexp.MustCompile(`(\b[\w.-]+)=`)
)

// DetectFormat sniffs the trimmed text. Precedence, first match wins:
//
//	json  braces or brackets that parse
//	html  markup containing a <table>
//	xml   a <tag>...</tag> wrapper
//	log   any line with key=value
//	tsv   at least half the lines contain a tab
//	yaml  any "- " line, or at least half the lines contain a colon
//	json  if the text parses after all, otherwise yaml
//
// Empty input is reported as json.
func DetectFormat(text string) Format {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return FormatJSON
	}
	if looksLikeJSONContainer(trimmed) {
		if _, err := value.ParseJSONString(trimmed); err == nil {
			return FormatJSON
		}
	}
	if reLeadingTag.MatchString(trimmed) && reTrailingClose.MatchString(trimmed) {
		if reHTMLTable.MatchString(trimmed) {
			return FormatHTML
		}
		return FormatXML
	}

	lines := splitLines(trimmed)
	for _, line := range lines {
		if reLogKey.MatchString(line) {
			return FormatLog
		}
	}

	threshold := len(lines) / 2
	if threshold < 1 {
		threshold = 1
	}

	tabs := 0
	for _, line := range lines {
		if strings.Contains(line, "\t") {
			tabs++
		}
	}
	if tabs >= threshold {
		return FormatTSV
	}

	dashes, colons := 0, 0
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "- ") {
			dashes++
		}
		if strings.Contains(line, ":") {
			colons++
		}
	}
	if dashes >= 1 || colons >= threshold {
		return FormatYAML
	}

	if _, err := value.ParseJSONString(trimmed); err == nil {
		return FormatJSON
	}
	return FormatYAML
}

func looksLikeJSONContainer(s string) bool {
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// splitLines splits on \n and drops a trailing \r from each line.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

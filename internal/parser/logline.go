package parser

import (
	"regexp"
	"strings"

	"tablesync/internal/value"
)

var reLogPair = regexp.MustCompile(`(\b[\w.-]+)=("[^"]*"|'[^']*'|\S+)`)

// ParseLogLines returns one record per non-empty line. A line that starts
// with { or [ and decodes to a JSON object is used as is. Otherwise every
// key=value pair becomes a field (values may be quoted); a line with no pairs
// becomes {"message": line}.
func ParseLogLines(text string) value.Value {
	var records []value.Value
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") || strings.HasPrefix(line, "[") {
			if v, err := value.ParseJSONString(line); err == nil && v.IsObject() {
				records = append(records, v)
				continue
			}
		}

		rec := value.NewMap()
		for _, m := range reLogPair.FindAllStringSubmatch(line, -1) {
			raw := m[2]
			if unq, ok := unquote(raw); ok {
				raw = unq
			}
			rec.Set(m[1], CoerceScalar(raw))
		}
		if rec.Len() == 0 {
			rec.Set("message", value.Str(line))
		}
		records = append(records, value.Obj(rec))
	}
	if records == nil {
		records = []value.Value{}
	}
	return value.List(records...)
}

package parser

import (
	"strings"

	"tablesync/internal/value"
)

type yamlTokenKind uint8

const (
	yamlSequence yamlTokenKind = iota
	yamlMapping
	yamlScalar
)

// yamlToken is one significant source line.
type yamlToken struct {
	kind   yamlTokenKind
	indent int
	key    string
	hasKey bool
	inline value.Value
	// hasInline is false for "key:" and bare "-" lines.
	hasInline bool
}

// ParseYAML parses the supported YAML subset. Text that is valid JSON is
// returned as parsed JSON. Input with no significant lines yields {}.
func ParseYAML(text string) value.Value {
	if v, err := value.ParseJSONString(strings.TrimSpace(text)); err == nil {
		return v
	}
	tokens := tokenizeYAML(text)
	if len(tokens) == 0 {
		return value.Obj(nil)
	}
	p := yamlParser{tokens: tokens}
	v, _ := p.block(0, 0)
	if v.IsNull() {
		return value.Obj(nil)
	}
	return v
}

// SplitKeyValue splits "key: value" at the first colon that is outside quotes
// and followed by whitespace, end of line, a quote or an opening bracket, so
// values like http://host stay intact. ok is false when no separator exists
// or the key is empty. hasValue is false for "key:" with nothing after it.
func SplitKeyValue(line string) (key, val string, hasValue, ok bool) {
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle && opensQuote(line, i)
		case c == '"' && !inSingle:
			inDouble = !inDouble && opensQuote(line, i)
		}
		if c != ':' || inSingle || inDouble {
			continue
		}
		if i+1 < len(line) {
			switch line[i+1] {
			case ' ', '\t', '\r', '\n', '"', '\'', '[', '{':
			default:
				continue
			}
		}
		key = strings.TrimSpace(line[:i])
		if key == "" {
			return "", "", false, false
		}
		val = strings.TrimSpace(line[i+1:])
		return key, val, val != "", true
	}
	return "", "", false, false
}

func tokenizeYAML(text string) []yamlToken {
	var tokens []yamlToken
	for _, line := range splitLines(text) {
		line = strings.ReplaceAll(line, "\t", "  ")
		line = stripYAMLComment(line)
		if strings.TrimSpace(line) == "" {
			continue
		}

		indent := 0
		for indent < len(line) && line[indent] == ' ' {
			indent++
		}
		body := line[indent:]

		if strings.HasPrefix(body, "- ") || body == "-" {
			rest := strings.TrimPrefix(strings.TrimPrefix(body, "-"), " ")
			tok := yamlToken{kind: yamlSequence, indent: indent}
			if k, v, hasV, ok := SplitKeyValue(rest); ok {
				tok.key, tok.hasKey, tok.hasInline = k, true, hasV
				if hasV {
					tok.inline = CoerceScalar(v)
				}
			} else if payload := strings.TrimSpace(rest); payload != "" {
				tok.inline, tok.hasInline = CoerceScalar(payload), true
			}
			tokens = append(tokens, tok)
			continue
		}

		if k, v, hasV, ok := SplitKeyValue(body); ok {
			tok := yamlToken{kind: yamlMapping, indent: indent, key: k, hasKey: true, hasInline: hasV}
			if hasV {
				tok.inline = CoerceScalar(v)
			}
			tokens = append(tokens, tok)
			continue
		}
		tokens = append(tokens, yamlToken{kind: yamlScalar, indent: indent, inline: CoerceScalar(body), hasInline: true})
	}
	return tokens
}

// stripYAMLComment drops a # that starts the line or follows whitespace,
// unless it sits inside a quoted span.
func stripYAMLComment(line string) string {
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\'' && !inDouble:
			inSingle = !inSingle && opensQuote(line, i)
		case c == '"' && !inSingle:
			inDouble = !inDouble && opensQuote(line, i)
		case c == '#' && !inSingle && !inDouble:
			if i == 0 || line[i-1] == ' ' {
				return line[:i]
			}
		}
	}
	return line
}

// opensQuote reports whether the quote at line[i] starts a quoted scalar,
// so the apostrophe in "don't" is plain text.
func opensQuote(line string, i int) bool {
	if i == 0 {
		return true
	}
	switch line[i-1] {
	case ' ', '\t', ':', '[', '{', ',', '-':
		return true
	}
	return false
}

type yamlParser struct {
	tokens []yamlToken
}

// childEnd returns the index of the first token after start whose indent is
// not deeper than indent.
func (p *yamlParser) childEnd(start, indent int) int {
	i := start
	for i < len(p.tokens) && p.tokens[i].indent > indent {
		i++
	}
	return i
}

// block parses the run of tokens starting at start that sits at indent. A
// first token that is more indented than expected re-anchors the block at
// its own indentation.
func (p *yamlParser) block(start, indent int) (value.Value, int) {
	if start >= len(p.tokens) {
		return value.Null(), start
	}
	first := p.tokens[start]
	if first.indent < indent {
		return value.Null(), start
	}
	if first.indent > indent {
		return p.block(start, first.indent)
	}

	switch first.kind {
	case yamlSequence:
		var items []value.Value
		i := start
		for i < len(p.tokens) {
			tok := p.tokens[i]
			if tok.kind != yamlSequence || tok.indent != indent {
				break
			}
			var item value.Value
			item, i = p.sequenceItem(i, indent)
			items = append(items, item)
		}
		return value.List(items...), i
	case yamlMapping:
		return p.mapping(start, indent)
	default:
		return first.inline, start + 1
	}
}

func (p *yamlParser) sequenceItem(index, indent int) (value.Value, int) {
	tok := p.tokens[index]
	childStart := index + 1
	childEnd := p.childEnd(childStart, indent)
	next := childEnd
	hasChildren := childStart < childEnd

	if tok.hasKey {
		obj := value.NewMap()
		if tok.hasInline {
			obj.Set(tok.key, tok.inline)
		}
		if hasChildren {
			var child value.Value
			child, next = p.block(childStart, indent+2)
			if m, ok := child.AsMap(); ok && tok.hasInline {
				m.Range(func(k string, v value.Value) bool {
					obj.Set(k, v)
					return true
				})
			} else {
				obj.Set(tok.key, child)
			}
		} else if !tok.hasInline {
			obj.Set(tok.key, value.Null())
		}
		return value.Obj(obj), next
	}

	if tok.hasInline {
		v := tok.inline
		if hasChildren {
			var child value.Value
			child, next = p.block(childStart, indent+2)
			if cm, ok := child.AsMap(); ok {
				merged := value.NewMap()
				if vm, ok := v.AsMap(); ok {
					merged = vm.Clone()
				} else {
					merged.Set("value", v)
				}
				cm.Range(func(k string, cv value.Value) bool {
					merged.Set(k, cv)
					return true
				})
				v = value.Obj(merged)
			} else {
				v = child
			}
		}
		return v, next
	}

	if hasChildren {
		child, n := p.block(childStart, indent+2)
		return child, n
	}
	return value.Null(), index + 1
}

func (p *yamlParser) mapping(start, indent int) (value.Value, int) {
	obj := value.NewMap()
	i := start
	for i < len(p.tokens) {
		tok := p.tokens[i]
		if tok.kind != yamlMapping || tok.indent != indent {
			break
		}
		v := value.Null()
		if tok.hasInline {
			v = tok.inline
		}
		childStart := i + 1
		next := p.childEnd(childStart, indent)
		if childStart < next {
			var child value.Value
			child, next = p.block(childStart, indent+2)
			switch {
			case !tok.hasInline:
				v = child
			default:
				vm, vok := v.AsMap()
				cm, cok := child.AsMap()
				if vok && cok {
					merged := vm.Clone()
					cm.Range(func(k string, cv value.Value) bool {
						merged.Set(k, cv)
						return true
					})
					v = value.Obj(merged)
				} else {
					v = child
				}
			}
		}
		obj.Set(tok.key, v)
		i = next
	}
	return value.Obj(obj), i
}

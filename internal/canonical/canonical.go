// Package canonical normalizes parsed value trees into flat records keyed by
// dotted paths.
package canonical

import (
	"strings"

	"tablesync/internal/value"
)

// MaxUnwrapDepth bounds how deep UnwrapEmbeddedJSON recurses.
const MaxUnwrapDepth = 6

// UnwrapEmbeddedJSON replaces string values that hold a JSON object or array
// with the decoded value, recursively through arrays and objects. Recursion
// stops past MaxUnwrapDepth levels and the remaining subtree is kept as is.
func UnwrapEmbeddedJSON(v value.Value) value.Value {
	return unwrap(v, 0)
}

func unwrap(v value.Value, depth int) value.Value {
	if depth > MaxUnwrapDepth {
		return v
	}
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		t := strings.TrimSpace(s)
		if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
			return v
		}
		parsed, err := value.ParseJSONString(t)
		if err != nil || (!parsed.IsObject() && !parsed.IsArray()) {
			return v
		}
		return unwrap(parsed, depth+1)
	case value.KindArray:
		items, _ := v.AsList()
		out := make([]value.Value, len(items))
		for i, item := range items {
			out[i] = unwrap(item, depth+1)
		}
		return value.List(out...)
	case value.KindObject:
		m, _ := v.AsMap()
		out := value.NewMap()
		m.Range(func(k string, item value.Value) bool {
			out.Set(k, unwrap(item, depth+1))
			return true
		})
		return value.Obj(out)
	}
	return v
}

// Flatten turns nested objects into a single level keyed by dotted paths.
// Arrays, including arrays of objects, are kept intact as leaf values. Empty
// nested objects disappear. A non-object input becomes {"value": v}.
func Flatten(v value.Value) *value.Map {
	out := value.NewMap()
	m, ok := v.AsMap()
	if !ok {
		out.Set("value", v)
		return out
	}
	flattenInto(out, m, "")
	return out
}

func flattenInto(out *value.Map, m *value.Map, prefix string) {
	m.Range(func(k string, item value.Value) bool {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := item.AsMap(); ok {
			flattenInto(out, child, path)
			return true
		}
		out.Set(path, item)
		return true
	})
}

// Unflatten rebuilds nested objects from dotted keys. When a key is both a
// leaf and a prefix of another key, the first one seen wins.
func Unflatten(flat *value.Map) value.Value {
	root := value.NewMap()
	flat.Range(func(path string, item value.Value) bool {
		parts := strings.Split(path, ".")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				if _, exists := cur.Get(part); !exists {
					cur.Set(part, item)
				}
				break
			}
			next, exists := cur.Get(part)
			if !exists {
				nm := value.NewMap()
				cur.Set(part, value.Obj(nm))
				cur = nm
				continue
			}
			nm, ok := next.AsMap()
			if !ok {
				break
			}
			cur = nm
		}
		return true
	})
	return value.Obj(root)
}

// Lookup fetches path from a flat record: the exact key first, then a walk
// through nested objects along the dotted segments.
func Lookup(rec *value.Map, path string) (value.Value, bool) {
	if v, ok := rec.Get(path); ok {
		return v, true
	}
	if path == "" {
		return value.Obj(rec), true
	}
	cur := value.Obj(rec)
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Get(part)
		if !ok {
			return value.Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Package value defines the closed tagged-value variant that every parser,
// canonicalizer and inferencer stage works on.
//
// A Value is one of Null, Bool, Number, String, Array or Object. Objects keep
// their keys in insertion order so that field discovery is deterministic and
// follows the order in which keys appear in the input.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable-by-convention tagged union. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *Map
}

func Null() Value            { return Value{} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Num(n float64) Value    { return Value{kind: KindNumber, n: n} }
func Int(n int) Value        { return Value{kind: KindNumber, n: float64(n)} }
func Str(s string) Value     { return Value{kind: KindString, s: s} }
func List(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// Obj wraps m as an Object value. A nil map yields an empty object.
func Obj(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindObject, obj: m}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) IsArray() bool  { return v.kind == KindArray }

// IsPrimitive reports whether v is a string, number or bool.
func (v Value) IsPrimitive() bool {
	return v.kind == KindString || v.kind == KindNumber || v.kind == KindBool
}

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the array elements. The slice must not be mutated.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) AsMap() (*Map, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Len returns the element count for arrays and objects, the byte length for
// strings, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	case KindString:
		return len(v.s)
	}
	return 0
}

// Get returns the member key of an object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	return v.obj.Get(key)
}

// Has reports whether v is an object containing key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Truthy follows loose boolean conversion: null, false, 0, NaN and "" are
// false; every other value, including empty arrays and objects, is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	}
	return true
}

// ToNumber converts loosely: strings are trimmed and parsed (empty is 0),
// booleans become 0/1, null becomes 0. Anything unparseable yields NaN.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case KindNumber:
		return v.n
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNull:
		return 0
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case KindArray:
		if len(v.arr) == 0 {
			return 0
		}
		if len(v.arr) == 1 {
			return v.arr[0].ToNumber()
		}
	}
	return math.NaN()
}

// Text renders v as display text. Primitives use their literal form; arrays
// and objects are encoded as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return v.s
	}
	return string(v.JSON())
}

// FormatNumber prints integral values without a fractional part and uses the
// shortest round-trip representation otherwise.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal reports deep equality. Object key order is not significant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for _, k := range a.obj.Keys() {
			bv, ok := b.obj.Get(k)
			if !ok {
				return false
			}
			av, _ := a.obj.Get(k)
			if !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

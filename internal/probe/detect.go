package probe

import (
	"math"
	"regexp"
	"strings"

	"tablesync/internal/schema"
	"tablesync/internal/value"
)

var (
	reURL     = regexp.MustCompile(`(?i)^https?://`)
	reEmail   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	rePhone   = regexp.MustCompile(`^1[3-9]\d{9}$|^\+\d{1,4}[\d\s-]+$`)
	reISODate = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})([ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+\-]\d{2}:?\d{2})?)?$`)
	reBarcode = regexp.MustCompile(`^[A-Z0-9]{8,}$`)

	phoneStrip = strings.NewReplacer(" ", "", "-", "", "\t", "")
)

// MaxSelectOptions bounds the distinct values kept as select options.
const MaxSelectOptions = 50

// Detection is the type evidence gathered for one value or one merged field.
type Detection struct {
	Primary   schema.FieldType
	Suggested []schema.FieldType
	Options   []string
	// Integral is true while every numeric value seen was a whole number.
	Integral bool
	// seen is false for evidence built only from nulls.
	seen bool
}

func isPhone(s string) bool   { return rePhone.MatchString(phoneStrip.Replace(s)) }
func isBarcode(s string) bool { return reBarcode.MatchString(strings.ToUpper(strings.TrimSpace(s))) }

// stringType picks the primary type of a string by priority.
func stringType(s string) schema.FieldType {
	switch {
	case reURL.MatchString(s):
		return schema.URL
	case reEmail.MatchString(s):
		return schema.Email
	case isPhone(s):
		return schema.Phone
	case reISODate.MatchString(s):
		return schema.DateTime
	case isBarcode(s):
		return schema.Barcode
	}
	return schema.Text
}

// selectOptions returns the distinct primitive values of items as strings, in
// order of first appearance. It returns nil when there are more than
// MaxSelectOptions distinct values.
func selectOptions(items []value.Value) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if !it.IsPrimitive() || it.IsNull() {
			continue
		}
		s := it.Text()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) > MaxSelectOptions {
			return nil
		}
	}
	return out
}

// DetectType classifies a single value and lists the types it is compatible
// with, primary first.
func DetectType(v value.Value) Detection {
	switch v.Kind() {
	case value.KindNull:
		return Detection{Primary: schema.Text, Suggested: []schema.FieldType{schema.Text}}

	case value.KindNumber:
		n, _ := v.AsNumber()
		sug := []schema.FieldType{schema.Number}
		if n >= 0 && n <= 100 {
			sug = append(sug, schema.Progress)
		}
		if n >= 0 && n <= 5 {
			sug = append(sug, schema.Rating)
		}
		sug = append(sug, schema.Currency)
		return Detection{Primary: schema.Number, Suggested: sug, Integral: n == math.Trunc(n), seen: true}

	case value.KindBool:
		return Detection{Primary: schema.Checkbox, Suggested: []schema.FieldType{schema.Checkbox}, seen: true}

	case value.KindString:
		s, _ := v.AsString()
		primary := stringType(s)
		sug := []schema.FieldType{primary}
		add := func(t schema.FieldType, ok bool) {
			if ok {
				sug = appendType(sug, t)
			}
		}
		add(schema.Text, true)
		add(schema.SingleSelect, true)
		add(schema.URL, reURL.MatchString(s))
		add(schema.Email, reEmail.MatchString(s))
		add(schema.Phone, isPhone(s))
		add(schema.Barcode, isBarcode(s))
		add(schema.DateTime, reISODate.MatchString(s))
		return Detection{Primary: primary, Suggested: sug, seen: true}

	case value.KindArray:
		items, _ := v.AsList()
		if opts := selectOptions(items); len(opts) > 0 {
			return Detection{
				Primary:   schema.MultiSelect,
				Suggested: []schema.FieldType{schema.MultiSelect, schema.Text},
				Options:   opts,
				seen:      true,
			}
		}
		return Detection{Primary: schema.Text, Suggested: []schema.FieldType{schema.Text}, seen: true}

	case value.KindObject:
		idVal, hasID := v.Get("id")
		_, idIsString := idVal.AsString()
		stringID := hasID && idIsString
		geo := v.Has("longitude") && v.Has("latitude")
		attachment := v.Has("token")
		money := v.Has("amount") || v.Has("currency") || v.Has("currencyCode")

		primary := schema.Text
		switch {
		case stringID:
		case geo:
			primary = schema.Location
		case attachment:
			primary = schema.Attachment
		case money:
			primary = schema.Currency
		}

		sug := []schema.FieldType{primary, schema.Text}
		if stringID {
			sug = append(sug, schema.SingleLink, schema.DuplexLink)
		}
		if geo {
			sug = append(sug, schema.Location)
		}
		if attachment {
			sug = append(sug, schema.Attachment)
		}
		if money {
			sug = append(sug, schema.Currency)
		}
		return Detection{Primary: primary, Suggested: dedupeTypes(sug), seen: true}
	}
	return Detection{Primary: schema.Text, Suggested: []schema.FieldType{schema.Text}}
}

// MergeDetections folds next into acc. Disagreeing primaries downgrade the
// field to Text while the suggestions keep the union of everything seen, so
// alternative evidence survives the conflict. Evidence built only from nulls
// never causes a conflict.
func MergeDetections(acc, next Detection) Detection {
	if !acc.seen && !next.seen {
		acc.Suggested = unionTypes(acc.Suggested, next.Suggested)
		if acc.Primary == "" {
			acc.Primary = schema.Text
		}
		return acc
	}
	if !next.seen {
		return acc
	}
	if !acc.seen {
		return next
	}

	out := Detection{seen: true, Integral: acc.Integral && next.Integral}
	out.Suggested = unionTypes(acc.Suggested, next.Suggested)
	if acc.Primary == next.Primary {
		out.Primary = acc.Primary
	} else {
		out.Primary = schema.Text
		out.Suggested = unionTypes([]schema.FieldType{schema.Text}, out.Suggested)
	}
	out.Options = unionOptions(acc.Options, next.Options)
	return out
}

func appendType(ts []schema.FieldType, t schema.FieldType) []schema.FieldType {
	for _, have := range ts {
		if have == t {
			return ts
		}
	}
	return append(ts, t)
}

func dedupeTypes(ts []schema.FieldType) []schema.FieldType {
	var out []schema.FieldType
	for _, t := range ts {
		out = appendType(out, t)
	}
	return out
}

func unionTypes(a, b []schema.FieldType) []schema.FieldType {
	out := append([]schema.FieldType(nil), a...)
	for _, t := range b {
		out = appendType(out, t)
	}
	return out
}

func unionOptions(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == MaxSelectOptions {
			break
		}
	}
	return out
}

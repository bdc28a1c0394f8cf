package schema

import "strings"

// FieldType is a destination column type.
type FieldType string

const (
	Text         FieldType = "Text"
	Number       FieldType = "Number"
	SingleSelect FieldType = "SingleSelect"
	MultiSelect  FieldType = "MultiSelect"
	DateTime     FieldType = "DateTime"
	Checkbox     FieldType = "Checkbox"
	User         FieldType = "User"
	Phone        FieldType = "Phone"
	URL          FieldType = "Url"
	Attachment   FieldType = "Attachment"
	SingleLink   FieldType = "SingleLink"
	Lookup       FieldType = "Lookup"
	Formula      FieldType = "Formula"
	DuplexLink   FieldType = "DuplexLink"
	Location     FieldType = "Location"
	GroupChat    FieldType = "GroupChat"
	CreatedTime  FieldType = "CreatedTime"
	ModifiedTime FieldType = "ModifiedTime"
	CreatedUser  FieldType = "CreatedUser"
	ModifiedUser FieldType = "ModifiedUser"
	AutoNumber   FieldType = "AutoNumber"
	Email        FieldType = "Email"
	Barcode      FieldType = "Barcode"
	Progress     FieldType = "Progress"
	Currency     FieldType = "Currency"
	Rating       FieldType = "Rating"
)

var allFieldTypes = []FieldType{
	Text, Number, SingleSelect, MultiSelect, DateTime, Checkbox, User, Phone, URL,
	Attachment, SingleLink, Lookup, Formula, DuplexLink, Location, GroupChat,
	CreatedTime, ModifiedTime, CreatedUser, ModifiedUser, AutoNumber, Email,
	Barcode, Progress, Currency, Rating,
}

// FieldTypes lists every supported type.
func FieldTypes() []FieldType {
	return append([]FieldType(nil), allFieldTypes...)
}

// ParseFieldType matches s case-insensitively against the supported types.
func ParseFieldType(s string) (FieldType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range allFieldTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// Narrow maps any type outside the supported set to Text.
func Narrow(t FieldType) FieldType {
	if got, ok := ParseFieldType(string(t)); ok {
		return got
	}
	return Text
}

// IsNumeric reports whether values of t are written as numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case Number, Progress, Rating, Currency:
		return true
	}
	return false
}

// IsSelect reports whether t carries an options list.
func (t FieldType) IsSelect() bool {
	return t == SingleSelect || t == MultiSelect
}

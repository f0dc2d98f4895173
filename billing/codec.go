/*
codec.go - TypedValue and the value codec

PURPOSE:
  Setting versions are stored generically (one TEXT column) while the
  engine works with typed values: exact decimals, times of day,
  booleans, text. The codec converts between the two and validates raw
  input against the catalog's declared type.

STORAGE FORMS:
  Number   decimal string, e.g. "3000" or "12.50"
  Time     "HH:MM" 24-hour clock
  Boolean  "true" / "false"
  Text     as-is

  Decimal strings keep monetary values exact end to end; binary floats
  never appear on a monetary path.
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VALUE TYPES
// =============================================================================

type ValueType string

const (
	ValueNumber  ValueType = "number"
	ValueTime    ValueType = "time"
	ValueBoolean ValueType = "boolean"
	ValueText    ValueType = "text"
)

// TypedValue is a decoded setting value. Exactly one of the payload
// fields is meaningful, selected by Type.
type TypedValue struct {
	Type   ValueType
	Number decimal.Decimal
	Clock  string // "HH:MM"
	Bool   bool
	Text   string
}

func NumberValue(d decimal.Decimal) TypedValue { return TypedValue{Type: ValueNumber, Number: d} }
func TimeValue(hhmm string) TypedValue         { return TypedValue{Type: ValueTime, Clock: hhmm} }
func BooleanValue(b bool) TypedValue           { return TypedValue{Type: ValueBoolean, Bool: b} }
func TextValue(s string) TypedValue            { return TypedValue{Type: ValueText, Text: s} }

// Money converts a number value to a monetary amount.
func (v TypedValue) Money() Money { return Money{Value: v.Number} }

// Raw returns the storage form of the value.
func (v TypedValue) Raw() string {
	switch v.Type {
	case ValueNumber:
		return v.Number.String()
	case ValueTime:
		return v.Clock
	case ValueBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return v.Text
	}
}

func (v TypedValue) String() string { return v.Raw() }

// Equal compares two typed values by type and payload.
func (v TypedValue) Equal(other TypedValue) bool {
	if v.Type != other.Type {
		return false
	}
	if v.Type == ValueNumber {
		return v.Number.Equal(other.Number)
	}
	return v.Raw() == other.Raw()
}

// =============================================================================
// CODEC
// =============================================================================

// DecodeValue parses a raw storage string into a TypedValue of the
// catalog-declared type for the key. Malformed input yields a
// ValidationError.
func DecodeValue(key SettingKey, raw string) (TypedValue, error) {
	def, err := Definition(key)
	if err != nil {
		return TypedValue{}, err
	}
	return decodeAs(def.ValueType, key, raw)
}

// EncodeValue validates a typed value against the catalog and returns
// its storage form. The type of the value must match the declared type.
func EncodeValue(key SettingKey, value TypedValue) (string, error) {
	def, err := Definition(key)
	if err != nil {
		return "", err
	}
	if value.Type != def.ValueType {
		return "", &ValidationError{Key: key, Raw: value.Raw(),
			Reason: fmt.Sprintf("expected %s value, got %s", def.ValueType, value.Type)}
	}
	// Round-trip through the decoder so encode enforces the same rules.
	if _, err := decodeAs(def.ValueType, key, value.Raw()); err != nil {
		return "", err
	}
	return value.Raw(), nil
}

// DefaultValue returns the catalog's documented default for a key.
func DefaultValue(key SettingKey) (TypedValue, error) {
	def, err := Definition(key)
	if err != nil {
		return TypedValue{}, err
	}
	return decodeAs(def.ValueType, key, def.Default)
}

func decodeAs(t ValueType, key SettingKey, raw string) (TypedValue, error) {
	switch t {
	case ValueNumber:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return TypedValue{}, &ValidationError{Key: key, Raw: raw, Reason: "not a decimal number"}
		}
		return NumberValue(d), nil

	case ValueTime:
		if _, err := time.Parse("15:04", raw); err != nil {
			return TypedValue{}, &ValidationError{Key: key, Raw: raw, Reason: "not a HH:MM time of day"}
		}
		return TimeValue(raw), nil

	case ValueBoolean:
		switch raw {
		case "true":
			return BooleanValue(true), nil
		case "false":
			return BooleanValue(false), nil
		default:
			return TypedValue{}, &ValidationError{Key: key, Raw: raw, Reason: `not "true" or "false"`}
		}

	default:
		return TextValue(raw), nil
	}
}

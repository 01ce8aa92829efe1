package validate

import (
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// stringValue unwraps string and *string. Anything else is not a string
// for the purposes of string rules.
func stringValue(value any) (string, bool) {
	switch s := value.(type) {
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	}
	return "", false
}

// Presence rules

func ruleRequired(value any, param string, sv reflect.Value) string {
	if value == nil {
		return "required"
	}

	val := reflect.ValueOf(value)
	switch val.Kind() {
	case reflect.String:
		if IsEmpty(val.String()) {
			return "required"
		}
	case reflect.Slice, reflect.Map, reflect.Array:
		if val.Len() == 0 {
			return "required"
		}
	case reflect.Ptr, reflect.Interface:
		if val.IsNil() {
			return "required"
		}
		if s, ok := stringValue(value); ok && IsEmpty(s) {
			return "required"
		}
	}

	// Zero numbers and false are valid values.
	return ""
}

// ruleNotBlank fails on blank strings and on non-string values.
func ruleNotBlank(value any, param string, sv reflect.Value) string {
	s, ok := stringValue(value)
	if !ok || IsEmpty(s) {
		return "notblank"
	}
	return ""
}

// Format rules

// emailRule leaves empty strings to "required"; non-string values fail.
func emailRule(m *EmailMatcher) RuleFunc {
	return func(value any, param string, sv reflect.Value) string {
		s, ok := stringValue(value)
		if !ok {
			return "email"
		}
		if s == "" {
			return ""
		}
		if !m.Match(s) {
			return "email"
		}
		return ""
	}
}

// Length/size rules

// sizeOf measures strings in runes, collections by length, and numbers by value.
func sizeOf(value any) (float64, bool) {
	if value == nil {
		return 0, false
	}
	if s, ok := stringValue(value); ok {
		return float64(utf8.RuneCountInString(s)), true
	}

	val := reflect.ValueOf(value)
	switch val.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return float64(val.Len()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(val.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(val.Uint()), true
	case reflect.Float32, reflect.Float64:
		return val.Float(), true
	}
	return 0, false
}

func ruleMin(value any, param string, sv reflect.Value) string {
	min, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return ""
	}
	if n, ok := sizeOf(value); ok && n < min {
		return "min"
	}
	return ""
}

func ruleMax(value any, param string, sv reflect.Value) string {
	max, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return ""
	}
	if n, ok := sizeOf(value); ok && n > max {
		return "max"
	}
	return ""
}

func ruleLen(value any, param string, sv reflect.Value) string {
	length, err := strconv.Atoi(param)
	if err != nil {
		return ""
	}
	if s, ok := stringValue(value); ok {
		if utf8.RuneCountInString(s) != length {
			return "len"
		}
		return ""
	}
	if value == nil {
		return ""
	}

	val := reflect.ValueOf(value)
	switch val.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		if val.Len() != length {
			return "len"
		}
	}
	return ""
}

// ruleOneOf takes space-separated options, e.g. `oneof=email blank`.
func ruleOneOf(value any, param string, sv reflect.Value) string {
	s, ok := stringValue(value)
	if !ok {
		return "oneof"
	}
	if s == "" {
		return ""
	}
	for _, opt := range strings.Fields(param) {
		if s == opt {
			return ""
		}
	}
	return "oneof"
}

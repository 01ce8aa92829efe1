// Package validate provides the form field predicates IsEmpty and
// IsValidEmail, and a struct validator driven by struct tags that builds
// on them.
//
// Basic usage:
//
//	type Signup struct {
//	    Name  string `json:"name" validate:"notblank,max=80"`
//	    Email string `json:"email" validate:"required,email"`
//	}
//
//	v := validate.New()
//	if err := v.Struct(form); err != nil {
//	    for _, e := range err.(validate.Errors) {
//	        fmt.Printf("%s: %s\n", e.Field, e.Message)
//	    }
//	}
package validate

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Validator validates struct fields using tags.
type Validator struct {
	tagName     string
	rules       map[string]RuleFunc
	messages    *MessageProvider
	email       *EmailMatcher
	mu          sync.RWMutex
	stopOnFirst bool
}

// RuleFunc is a validation rule function.
// It receives the field value, the parameter (if any), and the full struct.
// Returns an error message key if validation fails, empty string if valid.
type RuleFunc func(value any, param string, structValue reflect.Value) string

// Option configures the validator.
type Option func(*Validator)

// New creates a new validator with the built-in rules.
func New(opts ...Option) *Validator {
	v := &Validator{
		tagName:  "validate",
		rules:    make(map[string]RuleFunc),
		messages: DefaultMessages(),
		email:    NewEmailMatcher(),
	}

	for _, opt := range opts {
		opt(v)
	}

	v.registerBuiltinRules()

	return v
}

// WithTagName sets a custom tag name (default: "validate").
func WithTagName(name string) Option {
	return func(v *Validator) {
		v.tagName = name
	}
}

// WithMessages sets a custom message provider.
func WithMessages(m *MessageProvider) Option {
	return func(v *Validator) {
		v.messages = m
	}
}

// WithStopOnFirstError stops validation after the first error.
func WithStopOnFirstError() Option {
	return func(v *Validator) {
		v.stopOnFirst = true
	}
}

// WithCaseInsensitiveEmail makes the "email" rule accept ASCII uppercase
// letters. The "email_ci" rule is case-insensitive regardless.
func WithCaseInsensitiveEmail() Option {
	return func(v *Validator) {
		v.email = NewEmailMatcher(WithCaseInsensitive())
	}
}

// RegisterRule registers a custom validation rule.
func (v *Validator) RegisterRule(name string, fn RuleFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[name] = fn
}

// RegisterRuleFunc registers a simple validation function.
func (v *Validator) RegisterRuleFunc(name string, fn func(value any) bool, messageKey string) {
	v.RegisterRule(name, func(value any, param string, sv reflect.Value) string {
		if fn(value) {
			return ""
		}
		return messageKey
	})
}

// HasRule reports whether name is a registered rule or the omitempty
// modifier.
func (v *Validator) HasRule(name string) bool {
	if name == "omitempty" {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.rules[name]
	return ok
}

// UnknownRules returns the rule names in tag that are not registered, in
// tag order. Struct and Var skip unknown rules, so callers that accept
// tags from outside the program should check them first.
func (v *Validator) UnknownRules(tag string) []string {
	if tag == "-" {
		return nil
	}
	var unknown []string
	for _, r := range parseTag(tag) {
		if !v.HasRule(r.name) {
			unknown = append(unknown, r.name)
		}
	}
	return unknown
}

// SetMessages sets the message provider.
func (v *Validator) SetMessages(m *MessageProvider) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = m
}

// Struct validates a struct (or pointer to struct) using its tags.
// Passing anything else is a programming error and is reported as a
// plain error rather than as Errors.
func (v *Validator) Struct(s any) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return fmt.Errorf("validate: expected struct, got nil pointer")
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate: expected struct, got %s", val.Kind())
	}

	if errs := v.validateStruct(val, ""); len(errs) > 0 {
		return errs
	}
	return nil
}

// Var validates a single variable.
func (v *Validator) Var(value any, tag string) error {
	return v.Field("", value, tag)
}

// Field validates a single named value; the name is used in messages.
func (v *Validator) Field(name string, value any, tag string) error {
	errs := v.validateValue(reflect.ValueOf(value), name, tag, reflect.Value{})
	if len(errs) > 0 {
		return errs
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

func (v *Validator) validateStruct(val reflect.Value, prefix string) Errors {
	var errs Errors
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		fieldName := field.Name
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			name, _, _ := strings.Cut(jsonTag, ",")
			if name != "" && name != "-" {
				fieldName = name
			}
		}

		if prefix != "" {
			fieldName = prefix + "." + fieldName
		}

		tag := field.Tag.Get(v.tagName)

		errs = append(errs, v.validateValue(fieldVal, fieldName, tag, val)...)
		if v.stopOnFirst && len(errs) > 0 {
			return errs
		}

		errs = append(errs, v.validateNested(fieldVal, fieldName)...)
		if v.stopOnFirst && len(errs) > 0 {
			return errs
		}
	}

	return errs
}

// validateNested walks structs, pointers to structs, and slices of either.
func (v *Validator) validateNested(fieldVal reflect.Value, fieldName string) Errors {
	switch fieldVal.Kind() {
	case reflect.Struct:
		if fieldVal.Type() != timeType {
			return v.validateStruct(fieldVal, fieldName)
		}
	case reflect.Ptr:
		if !fieldVal.IsNil() {
			return v.validateNested(fieldVal.Elem(), fieldName)
		}
	case reflect.Slice, reflect.Array:
		var errs Errors
		for j := 0; j < fieldVal.Len(); j++ {
			elem := fieldVal.Index(j)
			if elem.Kind() == reflect.Struct || elem.Kind() == reflect.Ptr {
				errs = append(errs, v.validateNested(elem, fmt.Sprintf("%s[%d]", fieldName, j))...)
			}
		}
		return errs
	}
	return nil
}

// validateValue validates a single value against the rules in tag.
func (v *Validator) validateValue(val reflect.Value, fieldName, tag string, structVal reflect.Value) Errors {
	if tag == "" || tag == "-" {
		return nil
	}

	var errs Errors
	rules := parseTag(tag)

	isOptional := false
	for _, r := range rules {
		if r.name == "omitempty" {
			isOptional = true
			break
		}
	}

	if isOptional && isZeroValue(val) {
		return nil
	}

	// Rules run without the lock held so a rule may register others.
	fns := make([]RuleFunc, len(rules))
	v.mu.RLock()
	for i, rule := range rules {
		fns[i] = v.rules[rule.name]
	}
	messages := v.messages
	v.mu.RUnlock()

	var value any
	if val.IsValid() && val.CanInterface() {
		value = val.Interface()
	}

	for i, rule := range rules {
		ruleFn := fns[i]
		if rule.name == "omitempty" || ruleFn == nil {
			continue
		}

		msgKey := ruleFn(value, rule.param, structVal)
		if msgKey != "" {
			errs = append(errs, &Error{
				Field:   fieldName,
				Rule:    rule.name,
				Param:   rule.param,
				Value:   value,
				Message: messages.Get(msgKey, fieldName, rule.param),
			})

			if v.stopOnFirst {
				return errs
			}
		}
	}

	return errs
}

type rule struct {
	name  string
	param string
}

// parseTag parses a validation tag into rules.
func parseTag(tag string) []rule {
	var rules []rule
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, param, _ := strings.Cut(part, "=")
		rules = append(rules, rule{name: name, param: param})
	}
	return rules
}

// isZeroValue decides whether omitempty skips a field.
func isZeroValue(val reflect.Value) bool {
	if !val.IsValid() {
		return true
	}

	switch val.Kind() {
	case reflect.String:
		return val.String() == ""
	case reflect.Bool:
		return !val.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return val.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return val.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return val.Float() == 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return val.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return val.IsNil()
	}

	return false
}

func (v *Validator) registerBuiltinRules() {
	v.rules["required"] = ruleRequired
	v.rules["notblank"] = ruleNotBlank

	v.rules["email"] = emailRule(v.email)
	v.rules["email_ci"] = emailRule(NewEmailMatcher(WithCaseInsensitive()))

	v.rules["min"] = ruleMin
	v.rules["max"] = ruleMax
	v.rules["len"] = ruleLen
	v.rules["oneof"] = ruleOneOf
}

// Error represents a validation error.
type Error struct {
	Field   string
	Rule    string
	Param   string
	Value   any
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errors is a collection of validation errors.
type Errors []*Error

func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// FieldErrors returns all errors for a specific field.
func (e Errors) FieldErrors(field string) Errors {
	var result Errors
	for _, err := range e {
		if err.Field == field {
			result = append(result, err)
		}
	}
	return result
}

// ToMap converts errors to a map of field -> messages.
func (e Errors) ToMap() map[string][]string {
	result := make(map[string][]string)
	for _, err := range e {
		result[err.Field] = append(result[err.Field], err.Message)
	}
	return result
}

// First returns the first error or nil.
func (e Errors) First() *Error {
	if len(e) > 0 {
		return e[0]
	}
	return nil
}

var defaultValidator = New()

// Struct validates a struct using the default validator.
func Struct(s any) error {
	return defaultValidator.Struct(s)
}

// Var validates a variable using the default validator.
func Var(value any, tag string) error {
	return defaultValidator.Var(value, tag)
}

// RegisterRule registers a rule on the default validator.
func RegisterRule(name string, fn RuleFunc) {
	defaultValidator.RegisterRule(name, fn)
}

package validate

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// MessageProvider provides validation error messages with i18n support.
type MessageProvider struct {
	mu       sync.RWMutex
	messages map[string]map[string]string // locale -> key -> message
	locale   string
	fallback string
}

// NewMessageProvider creates an empty provider with "en" as locale and fallback.
func NewMessageProvider() *MessageProvider {
	return &MessageProvider{
		messages: make(map[string]map[string]string),
		locale:   "en",
		fallback: "en",
	}
}

// DefaultMessages returns a message provider with default English messages.
func DefaultMessages() *MessageProvider {
	m := NewMessageProvider()
	m.RegisterLocale("en", englishMessages)
	return m
}

// SetLocale sets the current locale.
func (m *MessageProvider) SetLocale(locale string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locale = locale
}

// SetFallback sets the fallback locale.
func (m *MessageProvider) SetFallback(locale string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = locale
}

// Locale returns the current locale.
func (m *MessageProvider) Locale() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locale
}

// Fallback returns the fallback locale.
func (m *MessageProvider) Fallback() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallback
}

// Locales lists the registered locales, fallback first when registered and
// the rest sorted.
func (m *MessageProvider) Locales() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for locale := range m.messages {
		if locale != m.fallback {
			out = append(out, locale)
		}
	}
	sort.Strings(out)
	if _, ok := m.messages[m.fallback]; ok {
		out = append([]string{m.fallback}, out...)
	}
	return out
}

// LoadYAML merges messages from a YAML document of the form
//
//	en:
//	  email: "{field} is not an email address"
//	pt:
//	  required: "{field} é obrigatório"
//
// Existing keys are overwritten; keys not in the document are kept.
// An empty document is not an error.
func (m *MessageProvider) LoadYAML(r io.Reader) error {
	var doc map[string]map[string]string
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode messages: %w", err)
	}

	for locale, msgs := range doc {
		locale = strings.TrimSpace(locale)
		if locale == "" {
			return errors.New("decode messages: empty locale name")
		}
		for key, msg := range msgs {
			m.AddMessage(locale, key, msg)
		}
	}
	return nil
}

// RegisterLocale registers messages for a locale. The map is copied.
func (m *MessageProvider) RegisterLocale(locale string, messages map[string]string) {
	cp := make(map[string]string, len(messages))
	for k, v := range messages {
		cp[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[locale] = cp
}

// AddMessage adds or updates a message for a locale.
func (m *MessageProvider) AddMessage(locale, key, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messages[locale] == nil {
		m.messages[locale] = make(map[string]string)
	}
	m.messages[locale][key] = message
}

// Get retrieves a message for the current locale, then the fallback locale.
// It supports placeholders: {field} for field name, {param} for parameter.
func (m *MessageProvider) Get(key, field, param string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, locale := range [...]string{m.locale, m.fallback} {
		if msg, ok := m.messages[locale][key]; ok {
			return format(msg, field, param)
		}
	}

	return fmt.Sprintf("%s validation failed for %s", key, field)
}

func format(msg, field, param string) string {
	return strings.NewReplacer("{field}", field, "{param}", param).Replace(msg)
}

// Clone creates a deep copy of the message provider.
func (m *MessageProvider) Clone() *MessageProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clone := NewMessageProvider()
	clone.locale = m.locale
	clone.fallback = m.fallback

	for locale, msgs := range m.messages {
		clone.messages[locale] = make(map[string]string, len(msgs))
		for k, v := range msgs {
			clone.messages[locale][k] = v
		}
	}

	return clone
}

// RegisterBuiltinLocales registers all built-in locales.
func (m *MessageProvider) RegisterBuiltinLocales() {
	m.RegisterLocale("en", englishMessages)
	m.RegisterLocale("es", spanishMessages)
	m.RegisterLocale("fr", frenchMessages)
	m.RegisterLocale("de", germanMessages)
}

var englishMessages = map[string]string{
	"required": "{field} is required",
	"notblank": "{field} must not be blank",
	"email":    "{field} must be a valid email address",
	"min":      "{field} must be at least {param}",
	"max":      "{field} must be at most {param}",
	"len":      "{field} must be exactly {param}",
	"oneof":    "{field} must be one of [{param}]",
}

var spanishMessages = map[string]string{
	"required": "{field} es obligatorio",
	"notblank": "{field} no puede estar en blanco",
	"email":    "{field} debe ser una dirección de correo válida",
	"min":      "{field} debe ser al menos {param}",
	"max":      "{field} debe ser como máximo {param}",
	"len":      "{field} debe tener exactamente {param}",
	"oneof":    "{field} debe ser uno de [{param}]",
}

var frenchMessages = map[string]string{
	"required": "{field} est obligatoire",
	"notblank": "{field} ne doit pas être vide",
	"email":    "{field} doit être une adresse email valide",
	"min":      "{field} doit être au moins {param}",
	"max":      "{field} doit être au maximum {param}",
	"len":      "{field} doit être exactement {param}",
	"oneof":    "{field} doit être l'un des [{param}]",
}

var germanMessages = map[string]string{
	"required": "{field} ist erforderlich",
	"notblank": "{field} darf nicht leer sein",
	"email":    "{field} muss eine gültige E-Mail-Adresse sein",
	"min":      "{field} muss mindestens {param} sein",
	"max":      "{field} darf höchstens {param} sein",
	"len":      "{field} muss genau {param} sein",
	"oneof":    "{field} muss einer von [{param}] sein",
}

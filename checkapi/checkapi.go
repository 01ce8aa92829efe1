// Package checkapi exposes the validate predicates over HTTP so that form
// front ends can run the same checks as the Go services behind them.
package checkapi

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dalemusser/formcheck/config"
	"github.com/dalemusser/formcheck/httputil"
	"github.com/dalemusser/formcheck/metrics"
	"github.com/dalemusser/formcheck/middleware"
	"github.com/dalemusser/formcheck/validate"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// ErrUnknownKind is returned by Checker.Check for kinds other than
// "email" and "blank".
var ErrUnknownKind = errors.New("unknown check kind")

// CheckRequest is a single value to check.
type CheckRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// CheckResult is the outcome of one CheckRequest.
type CheckResult struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

// BatchRequest is the body of POST /v1/check.
type BatchRequest struct {
	Checks []CheckRequest `json:"checks"`
}

// BatchResponse lists results in request order.
type BatchResponse struct {
	Results []CheckResult `json:"results"`
}

// FieldRequest names a form field, its rules in struct-tag syntax, and its value.
type FieldRequest struct {
	Name  string `json:"name"`
	Rules string `json:"rules"`
	Value string `json:"value"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Fields []FieldRequest `json:"fields"`
}

// ValidateResponse reports per-field messages when Valid is false.
type ValidateResponse struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// Checker runs checks by kind. It is safe for concurrent use.
type Checker struct {
	email *validate.EmailMatcher

	// One validator per message locale; locales[0] is the default.
	validators map[string]*validate.Validator
	locales    []string
	matcher    language.Matcher
}

// CheckerOption configures a Checker.
type CheckerOption func(*checkerOptions)

type checkerOptions struct {
	messages *validate.MessageProvider
}

// WithMessages replaces the built-in message catalog used by Validate.
func WithMessages(m *validate.MessageProvider) CheckerOption {
	return func(o *checkerOptions) { o.messages = m }
}

// NewChecker builds a Checker. caseInsensitive widens email matching to
// uppercase ASCII letters, for both "email" checks and the "email" rule.
func NewChecker(caseInsensitive bool, opts ...CheckerOption) *Checker {
	var o checkerOptions
	for _, opt := range opts {
		opt(&o)
	}
	msgs := o.messages
	if msgs == nil {
		msgs = BuiltinMessages()
	}

	c := &Checker{validators: make(map[string]*validate.Validator)}
	if caseInsensitive {
		c.email = validate.NewEmailMatcher(validate.WithCaseInsensitive())
	} else {
		c.email = validate.NewEmailMatcher()
	}

	locales := msgs.Locales()
	if len(locales) == 0 {
		locales = []string{msgs.Fallback()}
	}
	var tags []language.Tag
	for _, loc := range locales {
		tag, err := language.Parse(loc)
		if err != nil {
			// the default locale is kept even without a valid tag
			if len(c.locales) > 0 {
				continue
			}
			tag = language.Und
		}
		m := msgs.Clone()
		m.SetLocale(loc)
		vopts := []validate.Option{validate.WithMessages(m)}
		if caseInsensitive {
			vopts = append(vopts, validate.WithCaseInsensitiveEmail())
		}
		c.validators[loc] = validate.New(vopts...)
		c.locales = append(c.locales, loc)
		tags = append(tags, tag)
	}
	c.matcher = language.NewMatcher(tags)
	return c
}

// BuiltinMessages returns a catalog with every built-in locale and "en" as
// the fallback.
func BuiltinMessages() *validate.MessageProvider {
	m := validate.NewMessageProvider()
	m.RegisterBuiltinLocales()
	return m
}

// LoadMessages returns the built-in catalog overlaid with the YAML file at
// path. An empty path returns the built-in catalog.
func LoadMessages(path string) (*validate.MessageProvider, error) {
	m := BuiltinMessages()
	if path == "" {
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()
	if err := m.LoadYAML(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Check reports whether value passes the check named by kind. For "blank"
// the result is validate.IsEmpty, i.e. true means the value is blank.
func (c *Checker) Check(kind, value string) (bool, error) {
	var ok bool
	switch kind {
	case config.KindEmail:
		ok = c.email.Match(value)
	case config.KindBlank:
		ok = validate.IsEmpty(value)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	metrics.ObserveCheck(kind, ok)
	return ok, nil
}

// Locales lists the message locales, default first.
func (c *Checker) Locales() []string {
	return append([]string(nil), c.locales...)
}

// MatchLocale picks the message locale that best serves an Accept-Language
// header value. Unparseable or unmatched headers get the default locale.
func (c *Checker) MatchLocale(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.locales[0]
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(c.locales) {
		return c.locales[0]
	}
	return c.locales[idx]
}

// UnknownRules reports the first field whose rules name an unregistered
// rule. ok is false when every rule is known.
func (c *Checker) UnknownRules(fields []FieldRequest) (index int, names []string, ok bool) {
	v := c.validators[c.locales[0]]
	for i, f := range fields {
		if unknown := v.UnknownRules(f.Rules); len(unknown) > 0 {
			return i, unknown, true
		}
	}
	return 0, nil, false
}

// Validate runs each field's rules and collects the failures, with
// messages in locale. Unknown locales use the default.
func (c *Checker) Validate(fields []FieldRequest, locale string) validate.Errors {
	v, ok := c.validators[locale]
	if !ok {
		v = c.validators[c.locales[0]]
	}

	var all validate.Errors
	for _, f := range fields {
		err := v.Field(f.Name, f.Value, f.Rules)
		var errs validate.Errors
		if errors.As(err, &errs) {
			all = append(all, errs...)
		}
	}
	return all
}

// Handler serves the check API.
type Handler struct {
	checker  *Checker
	maxBatch int
	logger   *zap.Logger
}

// NewHandler builds a Handler from the check configuration.
func NewHandler(cfg config.CheckConfig, logger *zap.Logger, opts ...CheckerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &Handler{
		checker:  NewChecker(cfg.CaseInsensitive, opts...),
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// Mount attaches the check routes to r. mws run in front of every /v1
// route, after the cache headers are set.
func Mount(r chi.Router, h *Handler, mws ...func(http.Handler) http.Handler) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(mws...)
		r.Get("/check/{kind}", h.checkOne)
		r.With(middleware.RequireJSON).Post("/check", h.checkBatch)
		r.With(middleware.RequireJSON).Post("/validate", h.validateFields)
	})
}

// checkOne handles GET /v1/check/{kind}?value=...
// A missing value parameter is checked as the empty string.
func (h *Handler) checkOne(w http.ResponseWriter, r *http.Request) {
	kind := strings.ToLower(chi.URLParam(r, "kind"))
	value := r.URL.Query().Get("value")

	ok, err := h.checker.Check(kind, value)
	if err != nil {
		httputil.JSONError(w, http.StatusNotFound, "unknown_kind", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CheckResult{Kind: kind, Value: value, Valid: ok})
}

// checkBatch handles POST /v1/check.
func (h *Handler) checkBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		bindError(w, err)
		return
	}
	if len(req.Checks) > h.maxBatch {
		httputil.JSONError(w, http.StatusRequestEntityTooLarge, "batch_too_large",
			fmt.Sprintf("at most %d checks per request", h.maxBatch))
		return
	}

	// Kinds are case-insensitive, as in the GET route. Reject the whole
	// batch on an unknown kind before checking anything.
	for i := range req.Checks {
		c := &req.Checks[i]
		c.Kind = strings.ToLower(c.Kind)
		if c.Kind != config.KindEmail && c.Kind != config.KindBlank {
			httputil.JSONError(w, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("checks[%d]: %v: %q", i, ErrUnknownKind, c.Kind))
			return
		}
	}

	resp := BatchResponse{Results: make([]CheckResult, 0, len(req.Checks))}
	for _, c := range req.Checks {
		ok, _ := h.checker.Check(c.Kind, c.Value)
		resp.Results = append(resp.Results, CheckResult{Kind: c.Kind, Value: c.Value, Valid: ok})
	}

	h.logger.Debug("batch checked", zap.Int("count", len(resp.Results)))
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// validateFields handles POST /v1/validate. Messages follow the request's
// Accept-Language header.
func (h *Handler) validateFields(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		bindError(w, err)
		return
	}
	if len(req.Fields) > h.maxBatch {
		httputil.JSONError(w, http.StatusRequestEntityTooLarge, "batch_too_large",
			fmt.Sprintf("at most %d fields per request", h.maxBatch))
		return
	}

	// A misspelled rule would otherwise be skipped and the field pass.
	if i, names, ok := h.checker.UnknownRules(req.Fields); ok {
		httputil.JSONError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("fields[%d] (%s): unknown rules: %s", i, req.Fields[i].Name, strings.Join(names, ", ")))
		return
	}

	locale := h.checker.MatchLocale(r.Header.Get("Accept-Language"))
	w.Header().Set("Content-Language", locale)

	errs := h.checker.Validate(req.Fields, locale)
	if errs.HasErrors() {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, ValidateResponse{Valid: false, Errors: errs.ToMap()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ValidateResponse{Valid: true})
}

func bindError(w http.ResponseWriter, err error) {
	if httputil.IsBodyTooLarge(err) {
		httputil.JSONError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}
	httputil.JSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

package checkapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dalemusser/formcheck/config"
	"github.com/dalemusser/formcheck/router"
)

func newServer(t *testing.T, check config.CheckConfig, maxBody int64) *httptest.Server {
	t.Helper()
	cfg := &config.Config{Check: check, MaxRequestBodyBytes: maxBody}
	r := router.New(cfg, nil)
	Mount(r, NewHandler(check, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestChecker_Check(t *testing.T) {
	c := NewChecker(false)

	tests := []struct {
		kind, value string
		want        bool
	}{
		{"email", "user@example.com", true},
		{"email", "User@Example.com", false},
		{"email", "user@localhost", false},
		{"blank", "", true},
		{"blank", "   ", true},
		{"blank", "  a  ", false},
	}
	for _, tt := range tests {
		got, err := c.Check(tt.kind, tt.value)
		if err != nil {
			t.Fatalf("Check(%q, %q): %v", tt.kind, tt.value, err)
		}
		if got != tt.want {
			t.Errorf("Check(%q, %q) = %v, want %v", tt.kind, tt.value, got, tt.want)
		}
	}

	if _, err := c.Check("phone", "555"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestChecker_CaseInsensitive(t *testing.T) {
	c := NewChecker(true)
	ok, err := c.Check("email", "User@Example.com")
	if err != nil || !ok {
		t.Errorf("Check = %v, %v; want true", ok, err)
	}
	if errs := c.Validate([]FieldRequest{{Name: "email", Rules: "email", Value: "User@Example.com"}}, "en"); errs.HasErrors() {
		t.Errorf("Validate = %v", errs)
	}
}

func TestChecker_MatchLocale(t *testing.T) {
	c := NewChecker(false)

	if got := strings.Join(c.Locales(), ","); got != "en,de,es,fr" {
		t.Fatalf("Locales() = %q", got)
	}

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"de-CH, de;q=0.9", "de"},
		{"fr-CA", "fr"},
		{"ja, es;q=0.5", "es"},
		{"ja", "en"},
		{"en-GB", "en"},
		{"!!not a header", "en"},
	}
	for _, tt := range tests {
		if got := c.MatchLocale(tt.header); got != tt.want {
			t.Errorf("MatchLocale(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestChecker_ValidateLocale(t *testing.T) {
	c := NewChecker(false)
	fields := []FieldRequest{{Name: "correo", Rules: "required", Value: ""}}

	if got := c.Validate(fields, "es").First().Message; got != "correo es obligatorio" {
		t.Errorf("es message = %q", got)
	}
	if got := c.Validate(fields, "xx").First().Message; got != "correo is required" {
		t.Errorf("unknown locale message = %q", got)
	}
}

func TestChecker_UnknownRules(t *testing.T) {
	c := NewChecker(false)

	if _, _, ok := c.UnknownRules([]FieldRequest{{Name: "a", Rules: "required,email"}, {Name: "b", Rules: "omitempty,max=3"}}); ok {
		t.Error("known rules reported as unknown")
	}

	i, names, ok := c.UnknownRules([]FieldRequest{
		{Name: "a", Rules: "required"},
		{Name: "b", Rules: "requird,max=3,emial"},
	})
	if !ok || i != 1 || strings.Join(names, ",") != "requird,emial" {
		t.Errorf("UnknownRules = %d %v %v", i, names, ok)
	}
}

func TestLoadMessages(t *testing.T) {
	m, err := LoadMessages("")
	if err != nil {
		t.Fatalf("LoadMessages(\"\"): %v", err)
	}
	if len(m.Locales()) != 4 {
		t.Errorf("built-in locales = %v", m.Locales())
	}

	path := filepath.Join(t.TempDir(), "messages.yaml")
	doc := "en:\n  email: \"{field} looks wrong\"\nit:\n  required: \"{field} è obbligatorio\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err = LoadMessages(path)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}

	c := NewChecker(false, WithMessages(m))
	if got := c.MatchLocale("it-IT"); got != "it" {
		t.Errorf("MatchLocale(it-IT) = %q", got)
	}
	errs := c.Validate([]FieldRequest{{Name: "to", Rules: "email", Value: "nope"}}, "en")
	if got := errs.First().Message; got != "to looks wrong" {
		t.Errorf("overridden message = %q", got)
	}

	if _, err := LoadMessages(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCheckOne(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)

	tests := []struct {
		path  string
		code  int
		valid bool
	}{
		{"/v1/check/email?value=user%40example.com", http.StatusOK, true},
		{"/v1/check/email?value=user%40example.com%20", http.StatusOK, false},
		{"/v1/check/EMAIL?value=user%40localhost", http.StatusOK, false},
		{"/v1/check/email", http.StatusOK, false},
		{"/v1/check/blank?value=%20%20", http.StatusOK, true},
		{"/v1/check/blank", http.StatusOK, true},
		{"/v1/check/phone?value=1", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var res CheckResult
			code := getJSON(t, srv.URL+tt.path, &res)
			if code != tt.code {
				t.Fatalf("status = %d, want %d", code, tt.code)
			}
			if code == http.StatusOK && res.Valid != tt.valid {
				t.Errorf("valid = %v, want %v", res.Valid, tt.valid)
			}
		})
	}
}

func TestCheckOne_Headers(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)
	resp, err := http.Get(srv.URL + "/v1/check/email?value=a%40b.co")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", resp.Header.Get("Cache-Control"))
	}
}

func TestCheckBatch(t *testing.T) {
	srv := newServer(t, config.CheckConfig{MaxBatch: 3}, 0)

	var out BatchResponse
	code := postJSON(t, srv.URL+"/v1/check", `{"checks":[
		{"kind":"email","value":"user.name+tag@sub.example.co"},
		{"kind":"email","value":"@example.com"},
		{"kind":"blank","value":" \t "}
	]}`, &out)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	want := []bool{true, false, true}
	if len(out.Results) != len(want) {
		t.Fatalf("results = %d, want %d", len(out.Results), len(want))
	}
	for i, w := range want {
		if out.Results[i].Valid != w {
			t.Errorf("results[%d] = %+v, want valid=%v", i, out.Results[i], w)
		}
	}
}

func TestCheckBatch_KindCase(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)

	var one CheckResult
	if code := getJSON(t, srv.URL+"/v1/check/EMAIL?value=a%40b.co", &one); code != http.StatusOK || !one.Valid {
		t.Fatalf("GET upper-case kind: %d %+v", code, one)
	}

	var out BatchResponse
	code := postJSON(t, srv.URL+"/v1/check", `{"checks":[
		{"kind":"EMAIL","value":"a@b.co"},
		{"kind":"Blank","value":"  "}
	]}`, &out)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %+v", out.Results)
	}
	for i, want := range []string{"email", "blank"} {
		if r := out.Results[i]; r.Kind != want || !r.Valid {
			t.Errorf("results[%d] = %+v, want kind %q valid", i, r, want)
		}
	}
}

func TestCheckBatch_Errors(t *testing.T) {
	srv := newServer(t, config.CheckConfig{MaxBatch: 2}, 256)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown kind", `{"checks":[{"kind":"email","value":"a@b.co"},{"kind":"phone","value":"1"}]}`, http.StatusBadRequest},
		{"too many", `{"checks":[{"kind":"blank"},{"kind":"blank"},{"kind":"blank"}]}`, http.StatusRequestEntityTooLarge},
		{"malformed", `{"checks":`, http.StatusBadRequest},
		{"unknown field", `{"items":[]}`, http.StatusBadRequest},
		{"body too large", `{"checks":[{"kind":"email","value":"` + strings.Repeat("a", 512) + `@b.co"}]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := postJSON(t, srv.URL+"/v1/check", tt.body, nil); code != tt.code {
				t.Errorf("status = %d, want %d", code, tt.code)
			}
		})
	}
}

func TestCheckBatch_RequiresJSON(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)
	resp, err := http.Post(srv.URL+"/v1/check", "text/plain", strings.NewReader(`{"checks":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", resp.StatusCode)
	}
}

func TestValidateFields(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)

	var ok ValidateResponse
	code := postJSON(t, srv.URL+"/v1/validate", `{"fields":[
		{"name":"name","rules":"notblank,max=20","value":"Ada"},
		{"name":"email","rules":"required,email","value":"ada@example.com"}
	]}`, &ok)
	if code != http.StatusOK || !ok.Valid {
		t.Fatalf("valid form: %d %+v", code, ok)
	}

	var bad ValidateResponse
	code = postJSON(t, srv.URL+"/v1/validate", `{"fields":[
		{"name":"name","rules":"notblank","value":"  "},
		{"name":"email","rules":"required,email","value":"Ada@Example.com"}
	]}`, &bad)
	if code != http.StatusUnprocessableEntity || bad.Valid {
		t.Fatalf("invalid form: %d %+v", code, bad)
	}
	if got := bad.Errors["email"]; len(got) != 1 || got[0] != "email must be a valid email address" {
		t.Errorf("email errors = %v", got)
	}
	if got := bad.Errors["name"]; len(got) != 1 || got[0] != "name must not be blank" {
		t.Errorf("name errors = %v", got)
	}
}

func TestValidateFields_UnknownRules(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"misspelled rules", `{"fields":[{"name":"email","rules":"requird,emial","value":"NOT AN EMAIL"}]}`, http.StatusBadRequest},
		{"one bad field among good", `{"fields":[
			{"name":"name","rules":"notblank","value":"Ada"},
			{"name":"email","rules":"required,emial","value":"ada@example.com"}
		]}`, http.StatusBadRequest},
		{"omitempty is known", `{"fields":[{"name":"backup","rules":"omitempty,email","value":""}]}`, http.StatusOK},
		{"no rules", `{"fields":[{"name":"note","rules":"","value":"x"}]}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			code := postJSON(t, srv.URL+"/v1/validate", tt.body, &body)
			if code != tt.code {
				t.Fatalf("status = %d, want %d (%v)", code, tt.code, body)
			}
			if tt.code == http.StatusBadRequest {
				if body["error"] != "invalid_request" {
					t.Errorf("error = %v", body["error"])
				}
				if msg, _ := body["message"].(string); !strings.Contains(msg, "emial") {
					t.Errorf("message %q does not name the unknown rule", msg)
				}
			}
		})
	}
}

func TestValidateFields_AcceptLanguage(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/validate",
		strings.NewReader(`{"fields":[{"name":"email","rules":"required","value":""}]}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Language"); got != "de" {
		t.Errorf("Content-Language = %q", got)
	}
	if got := body.Errors["email"]; len(got) != 1 || got[0] != "email ist erforderlich" {
		t.Errorf("email errors = %v", got)
	}
}

func TestNotFound(t *testing.T) {
	srv := newServer(t, config.CheckConfig{}, 0)
	if code := getJSON(t, srv.URL+"/v2/nothing", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

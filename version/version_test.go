package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestString(t *testing.T) {
	orig := [3]string{Version, Commit, BuildTime}
	t.Cleanup(func() { Version, Commit, BuildTime = orig[0], orig[1], orig[2] })

	Version = "dev"
	if got := String(); got != "dev" {
		t.Errorf("String() = %q, want dev", got)
	}

	Version, Commit, BuildTime = "1.2.3", "abc123", "2026-01-15T10:30:00Z"
	if got, want := String(), "1.2.3 (abc123, built 2026-01-15T10:30:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestPatternDigest(t *testing.T) {
	d := PatternDigest()
	if len(d) != 12 {
		t.Fatalf("digest %q has length %d, want 12", d, len(d))
	}
	if d != PatternDigest() {
		t.Error("digest not stable")
	}
}

func TestMount(t *testing.T) {
	r := chi.NewRouter()
	Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info Info
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != Version || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
	if info.PatternDigest != PatternDigest() {
		t.Errorf("pattern_digest = %q", info.PatternDigest)
	}
}

// Package version reports build metadata and the email grammar a running
// formcheck enforces.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"runtime"

	"github.com/dalemusser/formcheck/httputil"
	"github.com/dalemusser/formcheck/validate"
	"github.com/go-chi/chi/v5"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/dalemusser/formcheck/version.Version=1.0.0 \
//	                   -X github.com/dalemusser/formcheck/version.Commit=abc123 \
//	                   -X github.com/dalemusser/formcheck/version.BuildTime=2026-01-15T10:30:00Z"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the body of GET /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`

	// PatternDigest identifies the email grammar so front ends can tell
	// whether their copy of validate.EmailPattern matches the server's.
	PatternDigest string `json:"pattern_digest"`
}

// PatternDigest returns the first 12 hex digits of the SHA-256 of
// validate.EmailPattern.
func PatternDigest() string {
	sum := sha256.Sum256([]byte(validate.EmailPattern))
	return hex.EncodeToString(sum[:])[:12]
}

// Get returns the current version info.
func Get() Info {
	return Info{
		Version:       Version,
		Commit:        Commit,
		BuildTime:     BuildTime,
		GoVersion:     runtime.Version(),
		PatternDigest: PatternDigest(),
	}
}

// Handler responds with Get() as JSON.
func Handler() http.Handler {
	info := Get()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, info)
	})
}

// Mount attaches GET /version to r.
func Mount(r chi.Router) {
	r.Method(http.MethodGet, "/version", Handler())
}

// String returns a one-line version, e.g. "1.2.3 (abc123, built 2026-01-15T10:30:00Z)".
func String() string {
	if Version == "dev" {
		return "dev"
	}
	return Version + " (" + Commit + ", built " + BuildTime + ")"
}

// config/duration.go
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errNonPositive = errors.New("duration must be > 0")

// parseDurationFlexible accepts Go duration strings ("90s", "2m"), plain
// seconds as a string or number, or a time.Duration.
// Returns def on empty/unknown types; returns def + error on invalid values.
func parseDurationFlexible(raw any, def time.Duration) (time.Duration, error) {
	var d time.Duration

	switch t := raw.(type) {
	case time.Duration:
		d = t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			d = time.Duration(n) * time.Second
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return def, fmt.Errorf("cannot parse duration %q", s)
		}
		d = parsed
	case int:
		d = time.Duration(t) * time.Second
	case int64:
		d = time.Duration(t) * time.Second
	case float64:
		d = time.Duration(t * float64(time.Second))
	default:
		// nil, bool, etc.
		return def, nil
	}

	if d <= 0 {
		return def, errNonPositive
	}
	return d, nil
}

// validate/blank.go
package validate

import (
	"strings"
	"unicode"
)

// IsEmpty reports whether s is empty or contains only whitespace.
//
// Whitespace is the set JavaScript's String.prototype.trim removes:
// Unicode White_Space plus U+FEFF (BOM), but not U+0085 (NEL).
func IsEmpty(s string) bool {
	return len(strings.TrimFunc(s, isFormSpace)) == 0
}

func isFormSpace(r rune) bool {
	if r == '\ufeff' {
		return true
	}
	return unicode.IsSpace(r) && r != '\u0085'
}

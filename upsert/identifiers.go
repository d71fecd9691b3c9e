package upsert

import (
	"fmt"
	"strings"
	"unicode"
)

// quoteIdentifier quotes a SQL identifier, ensuring internal quotes are escaped.
func quoteIdentifier(name string) (string, error) {
	if !isSafeIdentifier(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\"")), nil
}

// isSafeIdentifier reports whether the identifier meets simple SQL safety rules.
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' {
			continue
		}
		if unicode.IsLetter(r) {
			continue
		}
		if unicode.IsDigit(r) {
			if i == 0 {
				return false
			}
			continue
		}
		return false
	}
	return true
}

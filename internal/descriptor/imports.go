package descriptor

import (
	"strconv"
	"strings"
)

// DefaultImportName guesses the package name of an import path: the last
// element, skipping a major version suffix, a gopkg.in ".vN" suffix and a
// "go-" prefix. The extractor resolves unnamed imports with it and the
// specializer omits an import name that matches it.
func DefaultImportName(importPath string) string {
	parts := strings.Split(importPath, "/")
	name := parts[len(parts)-1]
	if len(parts) > 1 && isMajorVersion(name) {
		name = parts[len(parts)-2]
	}
	if strings.HasPrefix(importPath, "gopkg.in/") {
		if i := strings.Index(name, ".v"); i > 0 {
			name = name[:i]
		}
	}
	return strings.TrimPrefix(name, "go-")
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}

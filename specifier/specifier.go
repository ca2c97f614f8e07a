// Package specifier implements the default specifier resolver used by
// compartments that do not install their own resolve hook.
//
// Relative specifiers ("./x", "../x") and root-relative specifiers ("/x")
// resolve against the referrer. A referrer with a URL scheme resolves with
// RFC 3986 reference resolution; any other referrer is treated as a
// slash-separated path. Absolute URLs and bare specifiers are returned
// unchanged.
package specifier

import (
	"net/url"
	"path"
	"strings"

	"github.com/wippyai/modgraph/errors"
)

// IsRelative reports whether s must be resolved against a referrer.
func IsRelative(s string) bool {
	return strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "/") || s == "." || s == ".."
}

// HasScheme reports whether s looks like an absolute URL.
func HasScheme(s string) bool {
	i := strings.Index(s, ":")
	if i < 2 {
		// reject empty schemes and single-letter drive prefixes
		return false
	}
	for j := 0; j < i; j++ {
		c := s[j]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if j == 0 && !isAlpha {
			return false
		}
		if !isAlpha && (c < '0' || c > '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

// Resolve maps importSpecifier, written in the module at referrer, to a full
// specifier.
func Resolve(importSpecifier, referrer string) (string, error) {
	if importSpecifier == "" {
		return "", errors.Resolution(importSpecifier, referrer,
			errors.InvalidInput(errors.PhaseResolve, "empty specifier"))
	}

	if !IsRelative(importSpecifier) {
		return importSpecifier, nil
	}

	if HasScheme(referrer) {
		base, err := url.Parse(referrer)
		if err != nil {
			return "", errors.Resolution(importSpecifier, referrer, err)
		}
		ref, err := url.Parse(importSpecifier)
		if err != nil {
			return "", errors.Resolution(importSpecifier, referrer, err)
		}
		return base.ResolveReference(ref).String(), nil
	}

	if strings.HasPrefix(importSpecifier, "/") {
		return path.Clean(importSpecifier), nil
	}

	dir := path.Dir(referrer)
	resolved := path.Join(dir, importSpecifier)
	if strings.HasPrefix(referrer, "/") && !strings.HasPrefix(resolved, "/") {
		resolved = "/" + resolved
	}
	return resolved, nil
}

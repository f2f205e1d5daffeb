package upload

import "strings"

// NormalizeLocator resolves an audio locator against base. Absolute http(s)
// locators are returned verbatim; otherwise exactly one leading "/" is
// dropped and base (which ends in "/") is prepended.
func NormalizeLocator(base, locator string) string {
	if hasScheme(locator) {
		return locator
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(locator, "/")
}

func hasScheme(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

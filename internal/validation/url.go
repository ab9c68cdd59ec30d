// Package validation checks user supplied values that end up in the map page.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// placeholder matches Leaflet tile URL placeholders such as {z}, {-y} or {s}.
var placeholder = regexp.MustCompile(`\{-?[a-zA-Z]+\}`)

// unsafeChars could break out of the attribute or script the URL is
// written into.
var unsafeChars = []string{"<", ">", "\"", "'", "`", "\\", " ", "\n", "\r", "\t"}

// ValidateTileURL checks a basemap tile URL template. Only absolute http and
// https URLs are allowed.
func ValidateTileURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty tile URL")
	}

	for _, char := range unsafeChars {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("tile URL contains unsafe character %q", char)
		}
	}

	parsed, err := url.Parse(placeholder.ReplaceAllString(rawURL, "0"))
	if err != nil {
		return fmt.Errorf("invalid tile URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid tile URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("tile URL must have a hostname")
	}

	return nil
}

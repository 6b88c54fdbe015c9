package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	versionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateVersionNumber checks that v is a three-part numeric version ("1.4.0")
func ValidateVersionNumber(v string) error {
	if !versionRegex.MatchString(v) {
		return fmt.Errorf("invalid version number: %q", v)
	}
	return nil
}

// SanitizeString strips control characters (newlines and tabs are kept) and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

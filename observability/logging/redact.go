package logging

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// verbatim lists the keys MaskField never redacts. Keys are lower case.
var verbatim = map[string]bool{
	"component": true,
	"env":       true,
	"error":     true,
	"gauge":     true,
	"message":   true,
	"period":    true,
	"reason":    true,
	"requestid": true,
	"route":     true,
	"service":   true,
	"severity":  true,
	"timestamp": true,
}

// IsAllowlisted reports whether key is logged verbatim. Matching ignores case.
func IsAllowlisted(key string) bool {
	return verbatim[strings.ToLower(strings.TrimSpace(key))]
}

// RedactionAllowlist returns the verbatim keys in sorted order.
func RedactionAllowlist() []string {
	return slices.Sorted(maps.Keys(verbatim))
}

// MaskValue redacts non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField redacts value unless key is allowlisted. Empty values pass through
// so that unset secrets stay visible as unset.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

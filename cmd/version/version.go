package version

import "strings"

// CurrentVersion is set by build flags during release builds.
var CurrentVersion = "dev"

// FormatVersionForDisplay adds a single "v" prefix.
func FormatVersionForDisplay(version string) string {
	if version == "" {
		return "unknown"
	}
	// Normalize version to avoid double "v" prefix (handle both "v" and "V")
	normalized := strings.TrimPrefix(strings.TrimPrefix(version, "v"), "V")
	return "v" + normalized
}

package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// OverrideCwd is set from the global --cwd flag.
var OverrideCwd string

// GetEffectiveCWD returns the absolute --cwd value when given, else os.Getwd().
func GetEffectiveCWD() string {
	if dir := strings.TrimSpace(OverrideCwd); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return "."
	}
	if wd, _ := os.Getwd(); wd != "" {
		return wd
	}
	return "."
}

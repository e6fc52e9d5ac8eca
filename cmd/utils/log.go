package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	debugOnce   sync.Once
	debugMu     sync.Mutex
	debugFile   *os.File
	debugLogger *log.Logger
	enableDebug bool

	// Order matters: specific patterns must run before the generic token ones.
	sensitivePatterns = []struct {
		pattern     *regexp.Regexp
		replacement string
	}{
		{regexp.MustCompile(`\beyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED-JWT]"},
		// Google OAuth access tokens and authorization codes
		{regexp.MustCompile(`\bya29\.[a-zA-Z0-9\-_\.]+`), "[REDACTED-GOOGLE-TOKEN]"},
		{regexp.MustCompile(`\b4/[0-9A-Za-z\-_]{20,}`), "[REDACTED-AUTH-CODE]"},
		{regexp.MustCompile(`(?i)(authorization[=:\s]+['"]?)(Basic|Bearer|Digest)\s+[a-zA-Z0-9\-_\.=]+`), "${1}${2} [REDACTED]"},
		{regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9\-_\.]+`), "${1}[REDACTED]"},
		{regexp.MustCompile(`(?i)(auth[_-]?code[=:\s]+['"]?)[^\s&'"]+`), "${1}[REDACTED]"},
		{regexp.MustCompile(`(?i)(access[_-]?token['"]?[=:\s]+['"]?)[a-zA-Z0-9\-_\.]{16,}`), "${1}[REDACTED]"},
		{regexp.MustCompile(`(?i)(refresh[_-]?token['"]?[=:\s]+['"]?)[a-zA-Z0-9\-_\.]{16,}`), "${1}[REDACTED]"},
		{regexp.MustCompile(`(?i)(token[=:\s]+['"]?)[a-zA-Z0-9\-_\.]{16,}`), "${1}[REDACTED]"},
		{regexp.MustCompile(`(?i)(password[=:\s]+['"]?)[^\s&'"]+`), "${1}[REDACTED]"},
		{regexp.MustCompile(`(?i)(cookie[=:\s]+['"]?)[^;\n]+`), "${1}[REDACTED]"},
	}
)

// InitDebugLogger opens the shared debug log file through Bubble Tea's
// LogToFile so TUI and CLI output end up in the same place. An empty path
// resolves to <data dir>/logs/debug.log. Safe to call multiple times.
func InitDebugLogger(path string, debug bool) error {
	debugMu.Lock()
	enableDebug = debug
	debugMu.Unlock()

	var initErr error
	debugOnce.Do(func() {
		if path == "" {
			dir, err := GetAllyDataDir()
			if err != nil {
				initErr = err
				return
			}
			path = filepath.Join(dir, "logs", "debug.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			initErr = fmt.Errorf("create log directory: %w", err)
			return
		}

		if debug {
			abs, _ := filepath.Abs(path)
			if abs == "" {
				abs = path
			}
			fmt.Fprintf(os.Stderr, "[DEBUG] Logging to: %s\n", abs)
		}

		f, err := tea.LogToFile(path, "ally")
		if err != nil {
			initErr = err
			return
		}
		debugFile = f
		debugLogger = log.New(io.MultiWriter(f), "", log.LstdFlags)
	})
	return initErr
}

// CloseDebugLogger flushes and closes the log file if it was opened.
func CloseDebugLogger() {
	debugMu.Lock()
	defer debugMu.Unlock()
	if debugFile != nil {
		_ = debugFile.Sync()
		_ = debugFile.Close()
		debugFile = nil
	}
}

// ResetDebugLoggerForTesting lets tests point the logger at a fresh file.
// WARNING: This should ONLY be called from tests!
func ResetDebugLoggerForTesting() {
	CloseDebugLogger()
	debugMu.Lock()
	debugOnce = sync.Once{}
	debugLogger = nil
	enableDebug = false
	debugMu.Unlock()
}

// DebugEnabled reports whether --debug was requested.
func DebugEnabled() bool {
	debugMu.Lock()
	defer debugMu.Unlock()
	return enableDebug
}

func sanitizeLogMessage(msg string) string {
	sanitized := msg
	for _, sp := range sensitivePatterns {
		sanitized = sp.pattern.ReplaceAllString(sanitized, sp.replacement)
	}
	return sanitized
}

// LogDebug appends a redacted line to the debug log. With --debug the line
// is also routed to stderr (or the TUI) through the output manager.
func LogDebug(msg string) {
	debugMu.Lock()
	logger := debugLogger
	debugMu.Unlock()

	if logger == nil {
		if err := InitDebugLogger("", DebugEnabled()); err != nil {
			return
		}
		debugMu.Lock()
		logger = debugLogger
		debugMu.Unlock()
	}
	if logger == nil {
		return
	}

	sanitized := sanitizeLogMessage(msg)
	logger.Println(sanitized)
	if DebugEnabled() {
		sendMessage(DebugMessage, "%s", sanitized)
	}
}

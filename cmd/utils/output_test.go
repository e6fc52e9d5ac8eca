package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputDirectModeWriters(t *testing.T) {
	ClearTUIMode()
	var stdout, stderr bytes.Buffer
	SetOutputWriters(&stdout, &stderr)
	defer SetOutputWriters(nil, nil)

	OutputInfo("loaded %d projects", 2)
	OutputSuccess("done")
	OutputWarning("careful")
	OutputError("failed: %s", "boom")

	if got := stdout.String(); !strings.Contains(got, "loaded 2 projects") || !strings.Contains(got, "done") {
		t.Errorf("stdout = %q", got)
	}
	if got := stderr.String(); !strings.Contains(got, "careful") || !strings.Contains(got, "failed: boom") {
		t.Errorf("stderr = %q", got)
	}
	if strings.Contains(stdout.String(), "careful") {
		t.Errorf("warnings must not reach stdout")
	}
}

func TestOutputQueuedInTUIMode(t *testing.T) {
	ClearTUIMode()

	// TUI mode without a program queues messages until one is attached.
	outputManager.mu.Lock()
	outputManager.inTUIMode = true
	outputManager.tuiProgram = nil
	outputManager.mu.Unlock()
	defer ClearTUIMode()

	OutputInfo("queued message")
	sendMessage(DebugMessage, "dropped debug line")

	outputManager.mu.RLock()
	queueLen := len(outputManager.messageQueue)
	outputManager.mu.RUnlock()

	if queueLen != 1 {
		t.Errorf("Expected 1 queued message, got %d", queueLen)
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      OutputMessage
		expected string
	}{
		{"info", OutputMessage{Type: InfoMessage, Content: "test info"}, "ℹ️  test info\n"},
		{"warning", OutputMessage{Type: WarningMessage, Content: "test warning"}, "⚠️  test warning\n"},
		{"error", OutputMessage{Type: ErrorMessage, Content: "test error\n"}, "❌  test error\n"},
		{"success", OutputMessage{Type: SuccessMessage, Content: "test success"}, "✅  test success\n"},
		{"plain", OutputMessage{Type: InfoMessage, Content: "no emoji", NoEmoji: true}, "no emoji\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMessage(tt.msg); got != tt.expected {
				t.Errorf("FormatMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

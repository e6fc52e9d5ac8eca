package utils

import (
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// MessageType represents the type of output message
type MessageType int

const (
	InfoMessage MessageType = iota
	WarningMessage
	ErrorMessage
	SuccessMessage
	DebugMessage
)

// OutputMessage represents a message to be displayed
type OutputMessage struct {
	Type    MessageType
	Content string
	Writer  io.Writer // fallback writer when not in TUI mode
	NoEmoji bool
}

// TUIMessageMsg is a Bubble Tea message for routing output to the TUI
type TUIMessageMsg struct {
	Message OutputMessage
}

// OutputManager routes CLI output either to the terminal or to a running
// Bubble Tea program, where it is rendered as a toast.
type OutputManager struct {
	mu           sync.RWMutex
	tuiProgram   *tea.Program
	inTUIMode    bool
	messageQueue []OutputMessage
	stdout       io.Writer
	stderr       io.Writer
}

var outputManager = &OutputManager{}

// SetTUIMode hands output to the given program and flushes anything queued
// while the program was starting.
func SetTUIMode(program *tea.Program) {
	outputManager.mu.Lock()
	defer outputManager.mu.Unlock()
	outputManager.tuiProgram = program
	outputManager.inTUIMode = true

	for _, msg := range outputManager.messageQueue {
		if program != nil {
			go program.Send(TUIMessageMsg{Message: msg})
		}
	}
	outputManager.messageQueue = nil
}

// ClearTUIMode disables TUI mode
func ClearTUIMode() {
	outputManager.mu.Lock()
	defer outputManager.mu.Unlock()
	outputManager.tuiProgram = nil
	outputManager.inTUIMode = false
	outputManager.messageQueue = nil
}

// SetOutputWriters redirects direct-mode output. Nil restores os.Stdout/os.Stderr.
func SetOutputWriters(stdout, stderr io.Writer) {
	outputManager.mu.Lock()
	defer outputManager.mu.Unlock()
	outputManager.stdout = stdout
	outputManager.stderr = stderr
}

func sendMessage(msgType MessageType, format string, args ...interface{}) {
	sendMessageWithOptions(msgType, false, format, args...)
}

func sendMessageWithOptions(msgType MessageType, noEmoji bool, format string, args ...interface{}) {
	outputManager.mu.RLock()
	msg := OutputMessage{
		Type:    msgType,
		Content: fmt.Sprintf(format, args...),
		Writer:  outputManager.writerFor(msgType),
		NoEmoji: noEmoji,
	}
	inTUI := outputManager.inTUIMode
	program := outputManager.tuiProgram
	outputManager.mu.RUnlock()

	switch {
	case inTUI && msgType == DebugMessage:
		// Debug lines stay in the log file while a TUI owns the screen.
	case inTUI && program != nil:
		// Callers may be running inside the program's Update.
		go program.Send(TUIMessageMsg{Message: msg})
	case inTUI:
		outputManager.mu.Lock()
		outputManager.messageQueue = append(outputManager.messageQueue, msg)
		outputManager.mu.Unlock()
	default:
		fmt.Fprint(msg.Writer, FormatMessage(msg))
	}
}

// writerFor must be called with mu held.
func (m *OutputManager) writerFor(msgType MessageType) io.Writer {
	switch msgType {
	case ErrorMessage, WarningMessage, DebugMessage:
		if m.stderr != nil {
			return m.stderr
		}
		return os.Stderr
	default:
		if m.stdout != nil {
			return m.stdout
		}
		return os.Stdout
	}
}

// OutputInfo sends an informational message
func OutputInfo(format string, args ...interface{}) {
	sendMessage(InfoMessage, format, args...)
}

// OutputInfoPlain sends an informational message without emoji
func OutputInfoPlain(format string, args ...interface{}) {
	sendMessageWithOptions(InfoMessage, true, format, args...)
}

// OutputWarning sends a warning message
func OutputWarning(format string, args ...interface{}) {
	sendMessage(WarningMessage, format, args...)
}

// OutputError sends an error message
func OutputError(format string, args ...interface{}) {
	sendMessage(ErrorMessage, format, args...)
}

// OutputSuccess sends a success message
func OutputSuccess(format string, args ...interface{}) {
	sendMessage(SuccessMessage, format, args...)
}

// FormatMessage renders a message for direct terminal output.
func FormatMessage(msg OutputMessage) string {
	content := msg.Content
	if len(content) == 0 || content[len(content)-1] != '\n' {
		content += "\n"
	}
	if msg.NoEmoji {
		return content
	}

	var prefix string
	switch msg.Type {
	case InfoMessage:
		prefix = "ℹ️"
	case WarningMessage:
		prefix = "⚠️"
	case ErrorMessage:
		prefix = "❌"
	case SuccessMessage:
		prefix = "✅"
	case DebugMessage:
		prefix = "🐛"
	}
	return fmt.Sprintf("%s  %s", prefix, content)
}

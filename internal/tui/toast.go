package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ToastLevel picks the toast colour.
type ToastLevel int

const (
	ToastInfo ToastLevel = iota
	ToastSuccess
	ToastWarning
	ToastError
)

// ToastDuration is how long a toast stays up.
const ToastDuration = 3 * time.Second

type ToastModel struct {
	message   string
	level     ToastLevel
	visible   bool
	timestamp time.Time
	width     int
}

type ShowToastMsg struct {
	Message string
	Level   ToastLevel
}

type HideToastMsg struct{ shownAt time.Time }

func NewToastModel() ToastModel { return ToastModel{visible: false} }

// ShowToastCmd emits a ShowToastMsg.
func ShowToastCmd(message string, level ToastLevel) tea.Cmd {
	return func() tea.Msg { return ShowToastMsg{Message: message, Level: level} }
}

func (m ToastModel) Update(msg tea.Msg) (ToastModel, tea.Cmd) {
	switch msg := msg.(type) {
	case ShowToastMsg:
		m.message = msg.Message
		m.level = msg.Level
		m.visible = true
		m.timestamp = time.Now()
		shownAt := m.timestamp
		return m, tea.Tick(ToastDuration, func(t time.Time) tea.Msg { return HideToastMsg{shownAt: shownAt} })
	case HideToastMsg:
		// Ignore stale hide events if a newer toast was shown since this hide was scheduled
		if msg.shownAt.IsZero() || msg.shownAt.Equal(m.timestamp) {
			m.visible = false
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	}
	return m, nil
}

func (m ToastModel) Visible() bool   { return m.visible }
func (m ToastModel) Message() string { return m.message }

func (m ToastModel) View() string {
	if !m.visible {
		return ""
	}
	background := lipgloss.Color("86")
	switch m.level {
	case ToastSuccess:
		background = lipgloss.Color("35")
	case ToastWarning:
		background = lipgloss.Color("214")
	case ToastError:
		background = lipgloss.Color("160")
	}
	toastStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(background).Padding(0, 2).MarginRight(2).Bold(true)
	toast := toastStyle.Render(m.message)
	// Handle zero width gracefully: return inline toast without placement
	if m.width <= 0 {
		return toast
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, toast)
}

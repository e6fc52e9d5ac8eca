package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func openMenu(t *testing.T) QuickMenuModel {
	t.Helper()
	m := NewQuickMenuModel(&Config{Title: "Ally", ServerURL: "http://localhost:8000"})
	m.SetProjects([]string{"alpha", "beta"}, "alpha")
	m.SetFiles([]string{"report.pdf"})
	m.Open()
	require.True(t, m.IsActive())
	return m
}

func TestMenuSelectProject(t *testing.T) {
	m := openMenu(t)
	m, _ = m.Update(key("down"))
	m, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	require.Equal(t, SelectProjectMsg{Name: "beta"}, cmd())
	require.True(t, m.IsActive())
}

func TestMenuCursorWraps(t *testing.T) {
	m := openMenu(t)
	// alpha, beta, "+ New project"
	m, _ = m.Update(key("up"))
	require.Equal(t, 2, m.cursorPos)
	m, _ = m.Update(key("down"))
	require.Equal(t, 0, m.cursorPos)
}

func TestMenuCreateProject(t *testing.T) {
	m := openMenu(t)
	m, _ = m.Update(key("up"))
	m, _ = m.Update(key("enter"))
	require.True(t, m.Editing())

	m, _ = m.Update(key("gamma"))
	m, cmd := m.Update(key("enter"))
	require.False(t, m.Editing())
	require.NotNil(t, cmd)
	require.Equal(t, CreateProjectMsg{Name: "gamma"}, cmd())
}

func TestMenuCreateProjectBlankIgnored(t *testing.T) {
	m := openMenu(t)
	m, _ = m.Update(key("up"))
	m, _ = m.Update(key("enter"))
	m, _ = m.Update(key("   "))
	m, cmd := m.Update(key("enter"))
	require.Nil(t, cmd)
	require.False(t, m.Editing())
}

func TestMenuCreateProjectEscCancels(t *testing.T) {
	m := openMenu(t)
	m, _ = m.Update(key("up"))
	m, _ = m.Update(key("enter"))
	m, _ = m.Update(key("esc"))
	require.False(t, m.Editing())
	require.True(t, m.IsActive())
}

func TestMenuUpload(t *testing.T) {
	m := openMenu(t)
	m, _ = m.Update(key("tab"))
	require.Equal(t, FilesTab, m.activeTab)
	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("enter"))
	require.True(t, m.Editing())

	m, _ = m.Update(key("a.pdf b.wav"))
	_, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	require.Equal(t, UploadFilesMsg{Paths: []string{"a.pdf", "b.wav"}}, cmd())
}

func TestMenuUploadNeedsProject(t *testing.T) {
	m := NewQuickMenuModel(nil)
	m.Open()
	m, _ = m.Update(key("tab"))
	m, cmd := m.Update(key("enter"))
	require.False(t, m.Editing())
	require.NotNil(t, cmd)
	msg, ok := cmd().(ShowToastMsg)
	require.True(t, ok)
	require.Equal(t, ToastWarning, msg.Level)
}

func TestMenuCopyCommand(t *testing.T) {
	var copied string
	orig := copyToClipboard
	t.Cleanup(func() { copyToClipboard = orig })

	copyToClipboard = func(s string) error { copied = s; return nil }
	m := openMenu(t)
	m, _ = m.Update(key("tab"))
	m, _ = m.Update(key("tab"))
	require.Equal(t, CommandsTab, m.activeTab)
	_, cmd := m.Update(key("enter"))
	require.Equal(t, "ally login", copied)
	msg := cmd().(ShowToastMsg)
	require.Equal(t, "Copied: ally login", msg.Message)

	copyToClipboard = func(string) error { return errors.New("no clipboard") }
	_, cmd = m.Update(key("enter"))
	require.Equal(t, ToastWarning, cmd().(ShowToastMsg).Level)
}

func TestMenuEscCloses(t *testing.T) {
	m := openMenu(t)
	m, _ = m.Update(key("esc"))
	require.False(t, m.IsActive())
	require.Empty(t, m.View())
}

func TestMenuViewListsProjects(t *testing.T) {
	m := openMenu(t)
	view := m.View()
	require.Contains(t, view, "alpha")
	require.Contains(t, view, "beta")
	require.Contains(t, view, "+ New project")
}

func TestToastHideIgnoresStale(t *testing.T) {
	toast := NewToastModel()
	toast, cmd := toast.Update(ShowToastMsg{Message: "first"})
	require.NotNil(t, cmd)
	require.True(t, toast.Visible())
	first := toast.timestamp

	toast, _ = toast.Update(ShowToastMsg{Message: "second", Level: ToastError})
	toast, _ = toast.Update(HideToastMsg{shownAt: first.Add(-1)})
	require.True(t, toast.Visible())
	require.Equal(t, "second", toast.Message())

	toast, _ = toast.Update(HideToastMsg{shownAt: toast.timestamp})
	require.False(t, toast.Visible())
}

func TestWrapText(t *testing.T) {
	require.Equal(t, []string{"short"}, wrapText("short", 10))
	require.Equal(t, []string{"one two", "three"}, wrapText("one two three", 8))
}

package tui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type MenuTab int

const (
	ProjectsTab MenuTab = iota
	FilesTab
	CommandsTab
)

const tabCount = 3

type MenuState int

const (
	NormalState MenuState = iota
	CreateProjectState
	UploadState
)

type QuickMenuModel struct {
	active    bool
	activeTab MenuTab
	cursorPos int
	width     int
	height    int
	menuState MenuState

	config         *Config
	currentProject string

	projects []string
	files    []string
	commands []CommandItem

	input textinput.Model

	focusedStyle lipgloss.Style
	dimmedStyle  lipgloss.Style
	headerStyle  lipgloss.Style
	hintStyle    lipgloss.Style
	borderStyle  lipgloss.Style
	tabStyle     lipgloss.Style
	activeTab_   lipgloss.Style
	activeColor  lipgloss.Color
	accentColor  lipgloss.Color
}

type CommandItem struct {
	Command     string
	Description string
}

// Config is what the menu header shows.
type Config struct {
	Title     string
	ServerURL string
}

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

func NewQuickMenuModel(config *Config) QuickMenuModel {
	if config == nil {
		config = &Config{}
	}
	ti := textinput.New()
	ti.CharLimit = 512

	m := QuickMenuModel{
		config:    config,
		activeTab: ProjectsTab,
		menuState: NormalState,
		input:     ti,
	}

	m.focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	m.dimmedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	m.headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	m.hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	m.borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("86")).Padding(1, 2)
	m.tabStyle = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("245"))
	m.activeTab_ = lipgloss.NewStyle().Padding(0, 2).Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("86")).Bold(true)
	m.accentColor = lipgloss.Color("86")
	m.activeColor = lipgloss.Color("39")

	m.commands = []CommandItem{
		{Command: "ally login", Description: "Sign in with an auth code or callback URL"},
		{Command: "ally projects list", Description: "List your projects"},
		{Command: "ally projects create", Description: "Create a project"},
		{Command: "ally files upload", Description: "Upload .pdf, .mp4 or .wav files (10MB max)"},
		{Command: "ally chat", Description: "Ask a one-off question or open the chat screen"},
		{Command: "ally playground", Description: "Try prompts against the playground models"},
		{Command: "ally logout", Description: "Sign out and forget the stored token"},
		{Command: "ally version --check", Description: "Check for a newer release"},
	}
	return m
}

// SetProjects replaces the project list and marks current.
func (m *QuickMenuModel) SetProjects(projects []string, current string) {
	m.projects = append([]string(nil), projects...)
	m.currentProject = current
	if m.activeTab == ProjectsTab && m.cursorPos > m.getMaxCursorPos() {
		m.cursorPos = 0
	}
}

// SetFiles replaces the file list of the current project.
func (m *QuickMenuModel) SetFiles(files []string) {
	m.files = append([]string(nil), files...)
	if m.activeTab == FilesTab && m.cursorPos > m.getMaxCursorPos() {
		m.cursorPos = 0
	}
}

func (m QuickMenuModel) Update(msg tea.Msg) (QuickMenuModel, tea.Cmd) {
	if sz, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = sz.Width
		m.height = sz.Height
		return m, nil
	}
	if !m.active {
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.menuState != NormalState {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}
	if m.menuState != NormalState {
		return m.handleInput(key)
	}

	switch key.String() {
	case "esc":
		m.active = false
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		m.cursorPos = 0
		return m, nil
	case "shift+tab":
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		m.cursorPos = 0
		return m, nil
	case "up", "k":
		// Wrap-around navigation
		if m.cursorPos > 0 {
			m.cursorPos--
		} else {
			m.cursorPos = m.getMaxCursorPos()
		}
		return m, nil
	case "down", "j":
		if m.cursorPos < m.getMaxCursorPos() {
			m.cursorPos++
		} else {
			m.cursorPos = 0
		}
		return m, nil
	case "enter":
		var cmd tea.Cmd
		m, cmd = m.handleSelection()
		return m, cmd
	}
	return m, nil
}

func (m QuickMenuModel) handleInput(key tea.KeyMsg) (QuickMenuModel, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.menuState = NormalState
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		state := m.menuState
		m.menuState = NormalState
		m.input.Blur()
		m.input.SetValue("")
		if value == "" {
			return m, nil
		}
		if state == CreateProjectState {
			return m, createProjectCmd(value)
		}
		return m, uploadFilesCmd(strings.Fields(value))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m QuickMenuModel) getMaxCursorPos() int {
	switch m.activeTab {
	case ProjectsTab:
		// projects, then "+ New project"
		return len(m.projects)
	case FilesTab:
		// files, then "+ Upload files"
		return len(m.files)
	case CommandsTab:
		return len(m.commands) - 1
	default:
		return 0
	}
}

func (m QuickMenuModel) handleSelection() (QuickMenuModel, tea.Cmd) {
	switch m.activeTab {
	case ProjectsTab:
		if m.cursorPos < len(m.projects) {
			return m, selectProjectCmd(m.projects[m.cursorPos])
		}
		m.menuState = CreateProjectState
		m.input.Placeholder = "project name"
		m.input.Focus()
		return m, textinput.Blink
	case FilesTab:
		if m.cursorPos < len(m.files) {
			return m, nil
		}
		if m.currentProject == "" {
			return m, ShowToastCmd("Select a project before uploading files.", ToastWarning)
		}
		m.menuState = UploadState
		m.input.Placeholder = "paths to .pdf/.mp4/.wav files, space separated"
		m.input.Focus()
		return m, textinput.Blink
	case CommandsTab:
		if m.cursorPos < len(m.commands) {
			cmd := m.commands[m.cursorPos].Command
			if err := copyToClipboard(cmd); err != nil {
				return m, ShowToastCmd("Clipboard unavailable", ToastWarning)
			}
			return m, ShowToastCmd("Copied: "+cmd, ToastInfo)
		}
	}
	return m, nil
}

func (m QuickMenuModel) View() string {
	if !m.active {
		return ""
	}
	menuWidth := 60
	var content strings.Builder
	title := m.config.Title
	if title == "" {
		title = "Ally"
	}
	header := m.headerStyle.Render(title + " Quick Menu")
	closeHint := m.hintStyle.Render("[ESC to close]")
	spacer := menuWidth - lipgloss.Width(header) - lipgloss.Width(closeHint) - 4
	if spacer < 1 {
		spacer = 1
	}
	content.WriteString(lipgloss.JoinHorizontal(lipgloss.Left, header, strings.Repeat(" ", spacer), closeHint) + "\n")
	if m.config.ServerURL != "" {
		content.WriteString(m.dimmedStyle.Render("Server: "+m.config.ServerURL) + "\n")
	}
	content.WriteString(strings.Repeat("─", menuWidth-4) + "\n\n")
	content.WriteString(m.renderTabBar() + "\n\n")
	switch m.activeTab {
	case ProjectsTab:
		content.WriteString(m.renderProjectsTab())
	case FilesTab:
		content.WriteString(m.renderFilesTab())
	case CommandsTab:
		content.WriteString(m.renderCommandsTab())
	}
	content.WriteString("\n" + strings.Repeat("─", menuWidth-4) + "\n")
	footerBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.accentColor).
		Padding(0, 1).
		Width(menuWidth - 6)
	content.WriteString(footerBox.Render(m.renderFooter()))
	box := m.borderStyle.Width(menuWidth).Render(content.String())
	return m.positionMenu(box)
}

func (m QuickMenuModel) renderTabBar() string {
	names := []string{"Projects", "Files", "Commands"}
	tabs := make([]string, 0, len(names))
	for i, name := range names {
		if MenuTab(i) == m.activeTab {
			tabs = append(tabs, m.activeTab_.Render(name))
		} else {
			tabs = append(tabs, m.tabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m QuickMenuModel) cursor(i int) string {
	if i == m.cursorPos {
		return "→ "
	}
	return "  "
}

func (m QuickMenuModel) renderProjectsTab() string {
	if m.menuState == CreateProjectState {
		return "New project:\n\n" + m.input.View() + "\n\n" + m.hintStyle.Render("[Enter to create, Esc to cancel]")
	}
	var s strings.Builder
	if len(m.projects) == 0 {
		s.WriteString(m.dimmedStyle.Render("  (no projects)") + "\n")
	}
	for i, name := range m.projects {
		active := " "
		if name == m.currentProject {
			active = "✓"
		}
		line := fmt.Sprintf("%s%s %s", m.cursor(i), active, name)
		if i == m.cursorPos {
			line = m.focusedStyle.Render(line)
		} else if name == m.currentProject {
			line = lipgloss.NewStyle().Foreground(m.activeColor).Bold(true).Render(line)
		}
		s.WriteString(line + "\n")
	}
	newLine := m.cursor(len(m.projects)) + "+ New project"
	if m.cursorPos == len(m.projects) {
		newLine = m.focusedStyle.Render(newLine)
	}
	s.WriteString("\n" + newLine + "\n")
	return s.String()
}

func (m QuickMenuModel) renderFilesTab() string {
	if m.menuState == UploadState {
		return "Upload to " + m.currentProject + ":\n\n" + m.input.View() + "\n\n" + m.hintStyle.Render("[Enter to upload, Esc to cancel]")
	}
	var s strings.Builder
	project := m.currentProject
	if project == "" {
		project = "(none)"
	}
	s.WriteString(fmt.Sprintf("Project: %s\n\n", project))
	if len(m.files) == 0 {
		s.WriteString(m.dimmedStyle.Render("  (no files)") + "\n")
	}
	for i, name := range m.files {
		line := m.cursor(i) + name
		if i == m.cursorPos {
			line = m.focusedStyle.Render(line)
		}
		s.WriteString(line + "\n")
	}
	upload := m.cursor(len(m.files)) + "+ Upload files"
	if m.cursorPos == len(m.files) {
		upload = m.focusedStyle.Render(upload)
	}
	s.WriteString("\n" + upload + "\n")
	return s.String()
}

func (m QuickMenuModel) renderCommandsTab() string {
	var s strings.Builder
	s.WriteString(m.hintStyle.Render("CLI Commands (Enter: copy)") + "\n")
	for i, cmd := range m.commands {
		cmdText := cmd.Command
		if i == m.cursorPos {
			cmdText = m.focusedStyle.Render(cmdText)
		} else {
			cmdText = lipgloss.NewStyle().Foreground(m.accentColor).Render(cmdText)
		}
		descLines := wrapText(cmd.Description, 34)
		s.WriteString(fmt.Sprintf("%s%-22s %s\n", m.cursor(i), cmdText, descLines[0]))
		for j := 1; j < len(descLines); j++ {
			s.WriteString(fmt.Sprintf("%25s%s\n", "", descLines[j]))
		}
	}
	return s.String()
}

func (m QuickMenuModel) renderFooter() string {
	var shortcuts []string
	switch {
	case m.menuState != NormalState:
		shortcuts = []string{"Enter: confirm", "Esc: cancel"}
	case m.activeTab == CommandsTab:
		shortcuts = []string{"↑↓: scroll", "Enter: copy", "Tab: next", "ESC: close"}
	default:
		shortcuts = []string{"↑↓: navigate", "Enter: select", "Tab: sections", "ESC: close"}
	}
	return m.hintStyle.Render(strings.Join(shortcuts, "  "))
}

func (m QuickMenuModel) positionMenu(content string) string {
	contentLines := strings.Split(content, "\n")
	contentHeight := len(contentLines)
	contentWidth := 0
	for _, line := range contentLines {
		if w := lipgloss.Width(line); w > contentWidth {
			contentWidth = w
		}
	}
	// When height is zero, render without vertical padding (above input)
	topPadding := 0
	if m.height > 0 {
		topPadding = max((m.height-contentHeight)/2, 0)
	}
	leftPadding := max((m.width-contentWidth)/2, 0)
	var result strings.Builder
	for i := 0; i < topPadding; i++ {
		result.WriteString("\n")
	}
	for _, line := range contentLines {
		result.WriteString(strings.Repeat(" ", leftPadding))
		result.WriteString(line)
		result.WriteString("\n")
	}
	return result.String()
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	currentLine := ""
	for _, word := range strings.Fields(text) {
		if currentLine == "" {
			currentLine = word
		} else if len(currentLine)+len(word)+1 <= width {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}
	return lines
}

type SelectProjectMsg struct{ Name string }

func selectProjectCmd(name string) tea.Cmd { return func() tea.Msg { return SelectProjectMsg{Name: name} } }

type CreateProjectMsg struct{ Name string }

func createProjectCmd(name string) tea.Cmd { return func() tea.Msg { return CreateProjectMsg{Name: name} } }

type UploadFilesMsg struct{ Paths []string }

func uploadFilesCmd(paths []string) tea.Cmd { return func() tea.Msg { return UploadFilesMsg{Paths: paths} } }

func (m *QuickMenuModel) Toggle() {
	if m.active {
		m.Close()
	} else {
		m.Open()
	}
}

func (m *QuickMenuModel) Open() {
	m.active = true
	m.activeTab = ProjectsTab
	m.cursorPos = 0
	m.menuState = NormalState
}

func (m *QuickMenuModel) Close() {
	m.active = false
	m.menuState = NormalState
	m.input.Blur()
}

func (m QuickMenuModel) IsActive() bool { return m.active }

// Editing reports whether the menu is capturing text input.
func (m QuickMenuModel) Editing() bool { return m.active && m.menuState != NormalState }

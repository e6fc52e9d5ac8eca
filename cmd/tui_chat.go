package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/auth"
	"github.com/navio/ally/internal/chat"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/session"
	uitk "github.com/navio/ally/internal/tui"
	"github.com/navio/ally/internal/workspace"
)

var (
	assistantPrompt = "🤖 Ally:"
	webPrompt       = "🌐 Web:"
)

const gap = "\n\n"

const chatHelp = `Commands:
  /help            - Show this help
  /web             - Toggle web search for the next messages
  /projects        - Open the project picker
  /retry           - Resend the last message if its reply failed
  /copy            - Copy the last reply to the clipboard
  /clear           - Start a new conversation
  /exit            - Exit

Hotkeys:
  Ctrl+P - Project picker
  Ctrl+T - Toggle web search
  Ctrl+Y - Copy last reply
  Esc    - Stop waiting for the reply`

// relay forwards messages into a running program. Sends never block the
// caller, so store subscribers and notifiers can use it from any goroutine,
// including the program's own Update.
type relay struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *relay) attach(p *tea.Program) {
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
}

func (r *relay) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		go p.Send(msg)
	}
}

// Notify turns session notices into toasts.
func (r *relay) Notify(n session.Notice) {
	r.send(uitk.ShowToastMsg{Message: n.Text, Level: toastLevel(n.Level)})
}

func toastLevel(l session.Level) uitk.ToastLevel {
	switch l {
	case session.LevelWarning:
		return uitk.ToastWarning
	case session.LevelError:
		return uitk.ToastError
	case session.LevelSuccess:
		return uitk.ToastSuccess
	default:
		return uitk.ToastInfo
	}
}

type snapshotMsg struct{ snap session.Snapshot }
type turnDoneMsg struct{ outcome chat.Outcome }
type opDoneMsg struct{ err error }
type loggedOutMsg struct{ message string }
type infoMsg struct{ content string }

// transcriptNote is a client-side line shown between messages. Notes are
// not part of the session transcript.
type transcriptNote struct {
	after   int // number of transcript messages before the note
	content string
}

type chatModel struct {
	ctx  context.Context
	app  *app
	orch *chat.Orchestrator
	mgr  *workspace.Manager

	snap      session.Snapshot
	notes     []transcriptNote
	webSearch bool
	history   []string
	histIndex int

	spin       spinner.Model
	viewport   viewport.Model
	textarea   textarea.Model
	quickMenu  uitk.QuickMenuModel
	toast      uitk.ToastModel
	menuActive bool
	width      int
	termHeight int

	status    string
	loggedOut bool
}

// runChatTUI runs the interactive chat screen until the user leaves or is
// logged out.
func runChatTUI(a *app) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &relay{}
	a.notify = r
	a.setExpiredHandler(func(message string) { r.send(loggedOutMsg{message: message}) })

	m := newChatModel(ctx, a)
	unsubscribe := a.store.Subscribe(func(s session.Snapshot) { r.send(snapshotMsg{snap: s}) })
	defer unsubscribe()
	defer m.mgr.Close()

	p := tea.NewProgram(m)
	r.attach(p)

	go func() {
		err := a.creds.Watch(ctx, func(c auth.Credentials) {
			if c.AccessToken == "" {
				r.send(loggedOutMsg{message: "You have been logged out."})
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			utils.LogDebug(fmt.Sprintf("credentials watch stopped: %v", err))
		}
	}()

	// Enable TUI mode for output routing
	utils.SetTUIMode(p)
	defer utils.ClearTUIMode()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	if fm, ok := final.(chatModel); ok && fm.status != "" {
		fmt.Fprintln(os.Stderr, fm.status)
		if fm.loggedOut {
			return reported(errNotLoggedIn)
		}
	}
	return nil
}

func newChatModel(ctx context.Context, a *app) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Ask about your project files..."
	ta.Focus()
	ta.Prompt = "> "
	ta.SetWidth(30)
	ta.SetHeight(1)
	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(30, 5)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	width, height, _ := term.GetSize(os.Stdout.Fd())

	m := chatModel{
		ctx:        ctx,
		app:        a,
		orch:       a.chat(),
		mgr:        a.workspace(),
		spin:       s,
		viewport:   vp,
		textarea:   ta,
		quickMenu:  uitk.NewQuickMenuModel(&uitk.Config{Title: "Ally", ServerURL: a.server.URL}),
		toast:      uitk.NewToastModel(),
		width:      width,
		termHeight: height,
	}
	m.notes = []transcriptNote{{content: "Send a message or type '/help' for commands."}}
	m.refreshViewportBottom()
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick, m.loadProjectsCmd())
}

// loadProjectsCmd fetches the project list and selects the configured
// default project when it is listed. Otherwise the manager picks the first
// project after its select delay.
func (m chatModel) loadProjectsCmd() tea.Cmd {
	ctx, mgr, want := m.ctx, m.mgr, m.app.server.Project
	return func() tea.Msg {
		projects, err := mgr.FetchProjects(ctx)
		if err != nil {
			return opDoneMsg{err: err}
		}
		for _, p := range projects {
			if p.Value == want {
				_, err = mgr.SelectByName(ctx, want)
				break
			}
		}
		return opDoneMsg{err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		cmd   tea.Cmd
		cmds  []tea.Cmd
	)

	// Route messages to quick menu (it ignores most when inactive)
	m.quickMenu, cmd = m.quickMenu.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	// Toggle textarea focus based on overlay activity and lock input when active
	if m.quickMenu.IsActive() && !m.menuActive {
		m.textarea.Blur()
		m.menuActive = true
	}
	if !m.quickMenu.IsActive() && m.menuActive {
		m.textarea.Focus()
		m.menuActive = false
	}

	if !m.quickMenu.IsActive() {
		m.textarea, tiCmd = m.textarea.Update(msg)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)

	m.toast, cmd = m.toast.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, vpCmd, tiCmd, cmd)

	headerHeight := lipgloss.Height(m.renderInfoBar())
	footerHeight := lipgloss.Height(m.renderChatInput())

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Keep the viewport at least one line tall
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-footerHeight-headerHeight, 1)
		m.textarea.SetWidth(max(msg.Width-2, 10))
		m.width = msg.Width
		m.termHeight = msg.Height

	case snapshotMsg:
		// Snapshots are delivered asynchronously; never go backwards.
		if msg.snap.Version < m.snap.Version {
			return m, tea.Batch(cmds...)
		}
		m.snap = msg.snap
		m.syncMenu()

	case turnDoneMsg:
		if msg.outcome.Visible() && !gateway.IsUnauthorized(msg.outcome.Err) {
			cmds = append(cmds, uitk.ShowToastCmd(gateway.Message(msg.outcome.Err), uitk.ToastError))
		}

	case opDoneMsg:
		if msg.err != nil {
			utils.LogDebug(fmt.Sprintf("chat tui: operation failed: %v", msg.err))
		}

	case infoMsg:
		m.addNote(msg.content)

	case loggedOutMsg:
		// The expired handler and the credentials watch both report a
		// logout; the first one wins.
		if m.loggedOut {
			return m, tea.Batch(cmds...)
		}
		m.status = "🔒 " + strings.TrimSpace(msg.message) + " Run 'ally login' to sign in again."
		m.loggedOut = true
		return m, tea.Quit

	case utils.TUIMessageMsg:
		level := uitk.ToastInfo
		switch msg.Message.Type {
		case utils.WarningMessage:
			level = uitk.ToastWarning
		case utils.ErrorMessage:
			level = uitk.ToastError
		case utils.SuccessMessage:
			level = uitk.ToastSuccess
		}
		cmds = append(cmds, uitk.ShowToastCmd(strings.TrimSpace(msg.Message.Content), level))

	case uitk.SelectProjectMsg:
		m.quickMenu.Close()
		ctx, mgr, name := m.ctx, m.mgr, msg.Name
		cmds = append(cmds, func() tea.Msg {
			_, err := mgr.SelectByName(ctx, name)
			return opDoneMsg{err: err}
		})
		m.addNote(fmt.Sprintf("📁 Switched to project %s", msg.Name))

	case uitk.CreateProjectMsg:
		ctx, mgr, name := m.ctx, m.mgr, msg.Name
		cmds = append(cmds, func() tea.Msg {
			_, err := mgr.CreateProject(ctx, name)
			return opDoneMsg{err: err}
		})

	case uitk.UploadFilesMsg:
		ctx, mgr, paths := m.ctx, m.mgr, msg.Paths
		cmds = append(cmds, uitk.ShowToastCmd("Uploading...", uitk.ToastInfo), func() tea.Msg {
			_, err := mgr.UploadFiles(ctx, paths)
			return opDoneMsg{err: err}
		})

	case tea.KeyMsg:
		if m.quickMenu.IsActive() {
			return m, tea.Batch(cmds...)
		}
		switch msg.String() {
		case "ctrl+c":
			m.status = "👋 Bye!"
			return m, tea.Quit
		case "esc":
			if m.snap.Loading() {
				m.orch.Abort()
				m.addNote("Stopped waiting for the reply. Use /retry to send it again.")
			}
		case "ctrl+p":
			m.openMenu()
			return m, tea.Batch(cmds...)
		case "ctrl+t":
			m.toggleWebSearch()
		case "ctrl+y":
			cmds = append(cmds, m.copyLastReply())
		case "up":
			if m.histIndex > 0 {
				m.histIndex--
				m.textarea.SetValue(m.history[m.histIndex])
				m.textarea.CursorEnd()
			}
		case "down":
			if m.histIndex < len(m.history)-1 {
				m.histIndex++
				m.textarea.SetValue(m.history[m.histIndex])
				m.textarea.CursorEnd()
			} else {
				m.histIndex = len(m.history)
				m.textarea.SetValue("")
			}
		case "enter":
			var quit bool
			m, cmd, quit = m.handleEnter()
			if quit {
				return m, tea.Quit
			}
			cmds = append(cmds, cmd)
		}
	}

	m.refreshViewportBottom()
	return m, tea.Batch(cmds...)
}

// handleEnter runs a slash command or submits the input.
func (m chatModel) handleEnter() (chatModel, tea.Cmd, bool) {
	text := strings.TrimSpace(m.textarea.Value())
	if strings.HasPrefix(text, "/") {
		m.textarea.SetValue("")
		fields := strings.Fields(strings.ToLower(text))
		switch fields[0] {
		case "/help":
			m.addNote(chatHelp)
		case "/web":
			m.toggleWebSearch()
		case "/projects", "/menu":
			m.openMenu()
		case "/copy":
			return m, m.copyLastReply(), false
		case "/clear":
			if err := m.orch.Clear(); err != nil {
				return m, uitk.ShowToastCmd("Wait for the reply before starting a new conversation.", uitk.ToastWarning), false
			}
			m.notes = nil
		case "/retry":
			ctx, orch := m.ctx, m.orch
			return m, func() tea.Msg {
				outcome, err := orch.Retry(ctx)
				if err != nil {
					return infoMsg{content: "Nothing to retry."}
				}
				return turnDoneMsg{outcome: outcome}
			}, false
		case "/exit", "/quit":
			m.status = "👋 Bye!"
			return m, nil, true
		default:
			m.addNote(fmt.Sprintf("Unknown command %s. Type /help for commands.", fields[0]))
		}
		return m, nil, false
	}

	m.orch.SetInput(m.textarea.Value())
	turn, err := m.orch.Submit(m.webSearch)
	switch {
	case errors.Is(err, session.ErrBusy):
		// A reply is still loading; keep the input for later.
		return m, nil, false
	case err != nil:
		return m, nil, false
	}

	m.history = append(m.history, text)
	m.histIndex = len(m.history)
	m.textarea.SetValue("")
	ctx := m.ctx
	return m, func() tea.Msg { return turnDoneMsg{outcome: turn.Resolve(ctx)} }, false
}

func (m *chatModel) toggleWebSearch() {
	m.webSearch = !m.webSearch
	if m.webSearch {
		m.addNote("🌐 Web search on: replies come from the web.")
	} else {
		m.addNote("📁 Web search off: replies come from your project files.")
	}
}

func (m *chatModel) openMenu() {
	m.syncMenu()
	m.quickMenu.Open()
	m.textarea.Blur()
	m.menuActive = true
}

func (m *chatModel) syncMenu() {
	names := make([]string, 0, len(m.snap.Projects))
	for _, p := range m.snap.Projects {
		names = append(names, p.Value)
	}
	current := ""
	if m.snap.CurrentProject != nil {
		current = m.snap.CurrentProject.Value
	}
	m.quickMenu.SetProjects(names, current)
	m.quickMenu.SetFiles(m.snap.Files)
}

func (m *chatModel) addNote(content string) {
	m.notes = append(m.notes, transcriptNote{after: len(m.snap.Messages), content: content})
}

func (m chatModel) copyLastReply() tea.Cmd {
	for i := len(m.snap.Messages) - 1; i >= 0; i-- {
		msg := m.snap.Messages[i]
		if msg.Role != session.RoleAssistant || msg.Status != session.StatusDone {
			continue
		}
		if err := clipboard.WriteAll(msg.Content); err != nil {
			return uitk.ShowToastCmd("Clipboard unavailable", uitk.ToastWarning)
		}
		return uitk.ShowToastCmd("Copied last reply", uitk.ToastSuccess)
	}
	return uitk.ShowToastCmd("No reply to copy yet", uitk.ToastInfo)
}

func (m chatModel) assistantLabel() string {
	if m.webSearch {
		return webPrompt
	}
	return assistantPrompt
}

func (m chatModel) renderTranscript() string {
	var b strings.Builder
	baseStyle := lipgloss.NewStyle()
	noteStyle := baseStyle.Foreground(lipgloss.Color("#666666"))
	notes := m.notes

	writeNotes := func(upTo int) {
		for len(notes) > 0 && notes[0].after <= upTo {
			b.WriteString(noteStyle.Render(notes[0].content) + "\n\n")
			notes = notes[1:]
		}
	}

	for i, message := range m.snap.Messages {
		writeNotes(i)
		switch {
		case message.Role == session.RoleUser:
			style := baseStyle.Foreground(lipgloss.Color("#ccc"))
			b.WriteString(style.Bold(true).Render("> ") + style.Render(message.Content) + "\n\n")
		case message.Loading():
			thinking := m.assistantLabel() + " " + m.spin.View() + "Thinking..."
			b.WriteString(baseStyle.Foreground(lipgloss.Color("11")).Render(thinking) + gap)
		case message.Failed():
			b.WriteString(baseStyle.Foreground(lipgloss.Color("9")).Render(message.Content) + gap)
		default:
			label := baseStyle.Foreground(lipgloss.Color("11")).Render(m.assistantLabel())
			b.WriteString(label + " " + message.Content + gap)
		}
	}
	writeNotes(len(m.snap.Messages))
	return b.String()
}

// refreshViewportBottom updates the viewport and scrolls to the bottom.
func (m *chatModel) refreshViewportBottom() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(m.renderTranscript()))
	m.viewport.GotoBottom()
}

func (m chatModel) renderChatInput() string {
	var b strings.Builder
	b.WriteString(gap)

	cbStyle := lipgloss.NewStyle().
		MarginBottom(1).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63"))
	b.WriteString(cbStyle.Render(m.textarea.View()))

	helpText := "/help for commands | Up/Down: history | Ctrl+P: projects | Ctrl+T: web search"
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Width(max(m.width-2, 10)).Render(helpText))
	b.WriteString("\n")
	return b.String()
}

func (m chatModel) renderInfoBar() string {
	modeEmoji, modeLabel, bgColor := "📁", "PROJECT", "#027ffd"
	if m.webSearch {
		modeEmoji, modeLabel, bgColor = "🌐", "WEB SEARCH", "#28a745"
	}

	project := "no project"
	if m.snap.CurrentProject != nil {
		project = m.snap.CurrentProject.Label
	}

	who := m.app.creds.Credentials().Email
	if who == "" {
		who = "signed in"
	}

	serverHost := strings.TrimPrefix(strings.TrimPrefix(m.app.server.URL, "http://"), "https://")
	statusLine := fmt.Sprintf("%s %s: %s | Files: %d | %s | %s",
		modeEmoji, modeLabel, project, len(m.snap.Files), who, serverHost)

	style := lipgloss.NewStyle().
		Width(m.width).
		Background(lipgloss.Color(bgColor)).
		Foreground(lipgloss.Color("#ffffff")).
		PaddingLeft(1).
		PaddingRight(1)

	if lipgloss.Width(statusLine) > m.width-2 {
		if maxLen := m.width - 5; maxLen > 0 {
			statusLine = truncateRunes(statusLine, maxLen) + "..."
		}
	}
	return style.Render(statusLine)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (m chatModel) View() string {
	var b strings.Builder
	dim := lipgloss.NewStyle().Faint(true)
	if m.quickMenu.IsActive() {
		b.WriteString(dim.Render(m.viewport.View()))
		// Give the overlay a consistent height by passing terminal height
		m.quickMenu, _ = m.quickMenu.Update(tea.WindowSizeMsg{Width: m.width, Height: m.termHeight})
		b.WriteString("\n")
		b.WriteString(m.quickMenu.View())
		shadow := m
		shadow.textarea.Blur()
		b.WriteString(dim.Render(shadow.renderChatInput()))
	} else {
		b.WriteString(m.viewport.View())
		b.WriteString(m.renderChatInput())
	}
	b.WriteString(m.renderInfoBar())

	if v := m.toast.View(); v != "" {
		b.WriteString("\n")
		b.WriteString(v)
	}
	return b.String()
}

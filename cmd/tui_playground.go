package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/playground"
	"github.com/navio/ally/internal/session"
	uitk "github.com/navio/ally/internal/tui"
)

const playgroundHelp = `Commands:
  /model <name>        - Switch model (` + "mixtral-8x7b, llama2-70b" + `)
  /temperature <0-1>   - Set temperature
  /max-tokens <1-5000> - Set the reply length limit
  /top-p <0-1>         - Set top P
  /top-k <1-100>       - Set top K
  /settings            - Show the current settings
  /clear               - Start over
  /exit                - Exit

Hotkeys:
  Ctrl+R - Switch between writing as user and as assistant
  Ctrl+O - Cycle models`

type playgroundDoneMsg struct {
	msg playground.Message
	err error
}

type playgroundModel struct {
	ctx     context.Context
	session *playground.Session

	sending bool
	notes   []transcriptNote

	spin       spinner.Model
	viewport   viewport.Model
	textarea   textarea.Model
	toast      uitk.ToastModel
	width      int
	termHeight int

	status    string
	loggedOut bool
}

func runPlaygroundTUI(a *app, ps *playground.Session) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &relay{}
	a.notify = r
	a.setExpiredHandler(func(message string) { r.send(loggedOutMsg{message: message}) })

	p := tea.NewProgram(newPlaygroundModel(ctx, ps))
	r.attach(p)

	utils.SetTUIMode(p)
	defer utils.ClearTUIMode()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	if fm, ok := final.(playgroundModel); ok && fm.status != "" {
		fmt.Fprintln(os.Stderr, fm.status)
		if fm.loggedOut {
			return reported(errNotLoggedIn)
		}
	}
	return nil
}

func newPlaygroundModel(ctx context.Context, ps *playground.Session) playgroundModel {
	ta := textarea.New()
	ta.Placeholder = "Write a prompt..."
	ta.Focus()
	ta.Prompt = "> "
	ta.SetWidth(30)
	ta.SetHeight(1)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	width, height, _ := term.GetSize(os.Stdout.Fd())

	m := playgroundModel{
		ctx:        ctx,
		session:    ps,
		spin:       s,
		viewport:   viewport.New(30, 5),
		textarea:   ta,
		toast:      uitk.NewToastModel(),
		width:      width,
		termHeight: height,
		notes:      []transcriptNote{{content: "Playground: prompts go straight to the model. Type '/help' for commands."}},
	}
	m.refresh()
	return m
}

func (m playgroundModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick)
}

func (m playgroundModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		cmd   tea.Cmd
		cmds  []tea.Cmd
	)
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	m.toast, cmd = m.toast.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd, cmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.renderSettingsBar())
		footerHeight := lipgloss.Height(m.renderInput())
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.textarea.SetWidth(max(msg.Width-2, 10))
		m.width = msg.Width
		m.termHeight = msg.Height

	case playgroundDoneMsg:
		m.sending = false
		if msg.err != nil && !gateway.IsCanceled(msg.err) && !gateway.IsUnauthorized(msg.err) &&
			!errors.Is(msg.err, playground.ErrEmptyInput) && !errors.Is(msg.err, session.ErrBusy) {
			cmds = append(cmds, uitk.ShowToastCmd(gateway.Message(msg.err), uitk.ToastError))
		}

	case loggedOutMsg:
		if m.loggedOut {
			return m, tea.Batch(cmds...)
		}
		m.status = "🔒 " + strings.TrimSpace(msg.message) + " Run 'ally login' to sign in again."
		m.loggedOut = true
		return m, tea.Quit

	case utils.TUIMessageMsg:
		cmds = append(cmds, uitk.ShowToastCmd(strings.TrimSpace(msg.Message.Content), uitk.ToastInfo))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.status = "👋 Bye!"
			return m, tea.Quit
		case "ctrl+r":
			role := m.session.ToggleRole()
			m.textarea.SetValue("")
			cmds = append(cmds, uitk.ShowToastCmd("Writing as "+string(role), uitk.ToastInfo))
		case "ctrl+o":
			next := nextModel(m.session.Settings().Model)
			if err := m.session.SetModel(next); err == nil {
				cmds = append(cmds, uitk.ShowToastCmd("Model: "+next, uitk.ToastInfo))
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

	m.refresh()
	return m, tea.Batch(cmds...)
}

func nextModel(current string) string {
	for i, model := range playground.Models {
		if model.Name == current {
			return playground.Models[(i+1)%len(playground.Models)].Name
		}
	}
	return playground.Models[0].Name
}

func (m playgroundModel) handleEnter() (playgroundModel, tea.Cmd, bool) {
	text := strings.TrimSpace(m.textarea.Value())
	if strings.HasPrefix(text, "/") {
		m.textarea.SetValue("")
		note, quit := m.runCommand(strings.Fields(text))
		if quit {
			m.status = "👋 Bye!"
			return m, nil, true
		}
		if note != "" {
			m.notes = append(m.notes, transcriptNote{after: len(m.session.Messages()), content: note})
		}
		return m, nil, false
	}
	if m.sending || text == "" {
		return m, nil, false
	}

	m.session.SetInput(text)
	m.textarea.SetValue("")
	m.sending = true
	ctx, ps := m.ctx, m.session
	return m, func() tea.Msg {
		msg, err := ps.Send(ctx)
		return playgroundDoneMsg{msg: msg, err: err}
	}, false
}

// runCommand applies a slash command and returns a note for the transcript.
func (m playgroundModel) runCommand(fields []string) (string, bool) {
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch strings.ToLower(fields[0]) {
	case "/help":
		return playgroundHelp, false
	case "/exit", "/quit":
		return "", true
	case "/settings":
		return m.describeSettings(), false
	case "/clear":
		if err := m.session.Clear(); err != nil {
			return "Wait for the reply before clearing.", false
		}
		return "Conversation cleared.", false
	case "/model":
		if err := m.session.SetModel(arg); err != nil {
			return err.Error(), false
		}
		return "Model: " + arg, false
	case "/temperature", "/temp":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "Usage: /temperature <0-1>", false
		}
		return fmt.Sprintf("Temperature: %.2f", m.session.SetTemperature(v)), false
	case "/max-tokens", "/max":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "Usage: /max-tokens <1-5000>", false
		}
		return fmt.Sprintf("Max tokens: %d", m.session.SetMaxTokens(n)), false
	case "/top-p":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return "Usage: /top-p <0-1>", false
		}
		return fmt.Sprintf("Top P: %.2f", m.session.SetTopP(v)), false
	case "/top-k":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "Usage: /top-k <1-100>", false
		}
		return fmt.Sprintf("Top K: %d", m.session.SetTopK(n)), false
	}
	return fmt.Sprintf("Unknown command %s. Type /help for commands.", fields[0]), false
}

func (m playgroundModel) describeSettings() string {
	s := m.session.Settings()
	label := s.Model
	if model, err := playground.LookupModel(s.Model); err == nil {
		label = model.Label
	}
	return fmt.Sprintf("Model: %s\nTemperature: %.2f\nMax tokens: %d\nTop P: %.2f\nTop K: %d",
		label, s.Temperature, s.MaxTokens, s.TopP, s.TopK)
}

func (m playgroundModel) renderTranscript() string {
	var b strings.Builder
	base := lipgloss.NewStyle()
	noteStyle := base.Foreground(lipgloss.Color("#666666"))
	metricStyle := base.Faint(true)
	notes := m.notes
	writeNotes := func(upTo int) {
		for len(notes) > 0 && notes[0].after <= upTo {
			b.WriteString(noteStyle.Render(notes[0].content) + gap)
			notes = notes[1:]
		}
	}

	messages := m.session.Messages()
	for i, msg := range messages {
		writeNotes(i)
		switch {
		case msg.Failed():
			b.WriteString(base.Foreground(lipgloss.Color("9")).Render(msg.Content) + gap)
		case msg.Role == session.RoleUser:
			style := base.Foreground(lipgloss.Color("#ccc"))
			b.WriteString(style.Bold(true).Render("USER ") + style.Render(msg.Content) + gap)
		default:
			b.WriteString(base.Foreground(lipgloss.Color("205")).Render("ASSISTANT ") + msg.Content + "\n")
			if msg.Metrics != nil {
				b.WriteString(metricStyle.Render(formatMetrics(*msg.Metrics)) + "\n")
			}
			b.WriteString("\n")
		}
	}
	writeNotes(len(messages))
	if m.session.Streaming() {
		b.WriteString(base.Foreground(lipgloss.Color("205")).Render("ASSISTANT "+m.spin.View()+"Generating...") + gap)
	}
	return b.String()
}

func (m *playgroundModel) refresh() {
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(m.renderTranscript()))
	m.viewport.GotoBottom()
}

func (m playgroundModel) renderInput() string {
	var b strings.Builder
	b.WriteString(gap)
	box := lipgloss.NewStyle().
		MarginBottom(1).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("205"))
	b.WriteString(box.Render(m.textarea.View()))
	b.WriteString("\n")
	help := fmt.Sprintf("Writing as %s | Ctrl+R: switch role | Ctrl+O: cycle model | /help", m.session.Role())
	b.WriteString(lipgloss.NewStyle().Faint(true).Width(max(m.width-2, 10)).Render(help))
	b.WriteString("\n")
	return b.String()
}

func (m playgroundModel) renderSettingsBar() string {
	s := m.session.Settings()
	line := fmt.Sprintf("🧪 PLAYGROUND: %s | temp %.2f | max %d tokens | top-p %.2f | top-k %d",
		s.Model, s.Temperature, s.MaxTokens, s.TopP, s.TopK)
	if lipgloss.Width(line) > m.width-2 {
		if maxLen := m.width - 5; maxLen > 0 {
			line = truncateRunes(line, maxLen) + "..."
		}
	}
	return lipgloss.NewStyle().
		Width(m.width).
		Background(lipgloss.Color("#7d3cff")).
		Foreground(lipgloss.Color("#ffffff")).
		PaddingLeft(1).
		PaddingRight(1).
		Render(line)
}

func (m playgroundModel) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString(m.renderInput())
	b.WriteString(m.renderSettingsBar())
	if v := m.toast.View(); v != "" {
		b.WriteString("\n")
		b.WriteString(v)
	}
	return b.String()
}

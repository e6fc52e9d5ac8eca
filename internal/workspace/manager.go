// Package workspace manages the backend projects (workspaces) and the files
// uploaded to them.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/session"
)

const (
	ListEndpoint       = "/workspace/list"
	CreateEndpoint     = "/workspace/create"
	FileListEndpoint   = "/file/list/"
	FileUploadEndpoint = "/file/upload/"

	// DefaultSelectDelay is how long after listing the first project is
	// selected.
	DefaultSelectDelay = time.Second

	noProjectsNotice = "No projects found. Create one to get started."
)

var (
	// ErrNoProjectName is returned when creating a project without a name.
	ErrNoProjectName = errors.New("project name is required")
	// ErrNoProject is returned when an operation needs a current project.
	ErrNoProject = errors.New("no project selected")
)

// Sender is the part of the gateway the manager needs.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) ([]byte, error)
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Config wires a Manager.
type Config struct {
	Gateway     Sender
	Store       *session.Store
	Notifier    session.Notifier
	SelectDelay time.Duration
	AfterFunc   AfterFunc
}

// Manager loads, creates and selects projects and keeps the file list of the
// current project in the session store.
type Manager struct {
	gw          Sender
	store       *session.Store
	notify      session.Notifier
	selectDelay time.Duration
	afterFunc   AfterFunc

	mu         sync.Mutex
	stopSelect func() bool
	formOpen   bool
	formName   string
}

// NewManager builds a Manager.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		gw:          cfg.Gateway,
		store:       cfg.Store,
		notify:      cfg.Notifier,
		selectDelay: cfg.SelectDelay,
		afterFunc:   cfg.AfterFunc,
	}
	if m.notify == nil {
		m.notify = session.Discard
	}
	if m.selectDelay == 0 {
		m.selectDelay = DefaultSelectDelay
	}
	if m.afterFunc == nil {
		m.afterFunc = realAfterFunc
	}
	return m
}

// FetchProjects replaces the project list with the backend's. When the list
// is not empty the first project is selected after the select delay, unless
// a listed project is already current by then.
func (m *Manager) FetchProjects(ctx context.Context) ([]session.Project, error) {
	payload, err := m.gw.Send(ctx, gateway.Request{Method: http.MethodGet, Endpoint: ListEndpoint})
	if err == nil {
		var names []string
		if err = gateway.Data(payload, &names); err == nil {
			return m.applyProjects(ctx, names), nil
		}
	}
	if gateway.IsCanceled(err) {
		return nil, err
	}
	m.fail("Failed to load projects", err)
	return nil, err
}

func (m *Manager) applyProjects(ctx context.Context, names []string) []session.Project {
	projects := make([]session.Project, 0, len(names))
	for _, name := range names {
		projects = append(projects, session.NewProject(name))
	}
	m.store.SetProjects(projects)

	m.mu.Lock()
	if m.stopSelect != nil {
		m.stopSelect()
		m.stopSelect = nil
	}
	m.mu.Unlock()

	if len(projects) == 0 {
		m.notify.Notify(session.Notice{Level: session.LevelInfo, Text: noProjectsNotice})
		return projects
	}

	first := projects[0]
	bg := context.WithoutCancel(ctx)
	stop := m.afterFunc(m.selectDelay, func() {
		if current := m.store.CurrentProject(); current != nil && containsProject(m.store.Snapshot().Projects, current.Value) {
			return
		}
		if _, err := m.SelectProject(bg, &first); err != nil {
			utils.LogDebug(fmt.Sprintf("workspace: auto-select of %q failed: %v", first.Value, err))
		}
	})
	m.mu.Lock()
	m.stopSelect = stop
	m.mu.Unlock()
	return projects
}

// Close cancels a pending auto-selection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopSelect != nil {
		m.stopSelect()
		m.stopSelect = nil
	}
}

// OpenForm opens the project creation form.
func (m *Manager) OpenForm() {
	m.mu.Lock()
	m.formOpen = true
	m.mu.Unlock()
}

// CloseForm closes the creation form and clears its name field.
func (m *Manager) CloseForm() {
	m.mu.Lock()
	m.formOpen, m.formName = false, ""
	m.mu.Unlock()
}

// SetFormName updates the name field of the creation form.
func (m *Manager) SetFormName(name string) {
	m.mu.Lock()
	m.formName = name
	m.mu.Unlock()
}

// FormOpen reports whether the creation form is open.
func (m *Manager) FormOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formOpen
}

// FormName returns the name field of the creation form.
func (m *Manager) FormName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formName
}

// SubmitForm creates a project named after the form's name field.
func (m *Manager) SubmitForm(ctx context.Context) (session.Project, error) {
	return m.CreateProject(ctx, m.FormName())
}

// CreateProject asks the backend for a new project. On success it is added
// to the list once and the creation form is closed. On failure nothing
// changes.
func (m *Manager) CreateProject(ctx context.Context, name string) (session.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		m.notify.Notify(session.Notice{Level: session.LevelWarning, Text: "Please enter a project name."})
		return session.Project{}, ErrNoProjectName
	}

	payload, err := m.gw.Send(ctx, gateway.Request{
		Method:   http.MethodPost,
		Endpoint: CreateEndpoint,
		Body:     map[string]string{"workspace_name": name},
	})
	if err == nil {
		var ignored json.RawMessage
		err = gateway.Data(payload, &ignored)
	}
	if err != nil {
		if !gateway.IsCanceled(err) {
			m.fail("Failed to create project", err)
		}
		return session.Project{}, err
	}

	p := session.NewProject(name)
	m.store.AddProject(p)
	m.CloseForm()
	m.notify.Notify(session.Notice{Level: session.LevelSuccess, Text: fmt.Sprintf("Project %q created", name)})
	return p, nil
}

// SelectProject makes p current (nil clears the selection) and refetches
// its files. Selecting the current project again does nothing.
func (m *Manager) SelectProject(ctx context.Context, p *session.Project) ([]string, error) {
	if !m.store.SetCurrentProject(p) {
		return m.store.Snapshot().Files, nil
	}
	return m.FetchFiles(ctx, p)
}

// SelectByName selects the listed project called name.
func (m *Manager) SelectByName(ctx context.Context, name string) ([]string, error) {
	for _, p := range m.store.Snapshot().Projects {
		if p.Value == name {
			return m.SelectProject(ctx, &p)
		}
	}
	return nil, fmt.Errorf("project %q not found", name)
}

// FetchFiles replaces the file list with the files of p. No project means
// no files, and no backend call.
func (m *Manager) FetchFiles(ctx context.Context, p *session.Project) ([]string, error) {
	if p == nil {
		m.store.SetFiles([]string{})
		return []string{}, nil
	}

	payload, err := m.gw.Send(ctx, gateway.Request{
		Method:   http.MethodGet,
		Endpoint: FileListEndpoint,
		Query:    url.Values{"workspace_name": {p.Value}},
	})
	var files []string
	if err == nil {
		err = gateway.Data(payload, &files)
	}
	if err != nil {
		if gateway.IsCanceled(err) {
			return nil, err
		}
		m.fail("Failed to load files", err)
		m.store.SetFiles([]string{})
		return []string{}, err
	}
	if files == nil {
		files = []string{}
	}
	m.store.SetFiles(files)
	return files, nil
}

func (m *Manager) fail(prefix string, err error) {
	utils.LogDebug(fmt.Sprintf("workspace: %s: %v", prefix, err))
	// The session-expired alert has already been shown.
	if gateway.IsUnauthorized(err) {
		return
	}
	m.notify.Notify(session.Notice{Level: session.LevelError, Text: fmt.Sprintf("%s: %s", prefix, gateway.Message(err))})
}

func containsProject(projects []session.Project, value string) bool {
	for _, p := range projects {
		if p.Value == value {
			return true
		}
	}
	return false
}

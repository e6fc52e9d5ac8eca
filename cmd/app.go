package cmd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/navio/ally/cmd/config"
	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/auth"
	"github.com/navio/ally/internal/chat"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/playground"
	"github.com/navio/ally/internal/session"
	"github.com/navio/ally/internal/workspace"
)

var errNotLoggedIn = errors.New("not logged in; run 'ally login' first")

// app is everything a command needs to talk to the backend, resolved from
// flags, config files and the credentials file.
type app struct {
	cfg     *config.AllyConfig
	cfgPath string
	dataDir string
	server  *config.ServerConfig

	creds  *auth.Store
	gw     *gateway.Gateway
	store  *session.Store
	notify session.Notifier

	expiredMu sync.Mutex
	onExpired func(message string)
}

func newApp(notifier session.Notifier) (*app, error) {
	dataDir, err := utils.GetAllyDataDir()
	if err != nil {
		return nil, err
	}
	cfg, cfgPath, err := config.Resolve(utils.GetEffectiveCWD(), dataDir)
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		utils.LogDebug(fmt.Sprintf("using config %s", cfgPath))
	}

	credPath, err := utils.GetCredentialsPath()
	if err != nil {
		return nil, err
	}
	creds, err := auth.NewStore(credPath)
	if err != nil {
		return nil, err
	}

	if notifier == nil {
		notifier = cliNotifier{}
	}
	a := &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		dataDir: dataDir,
		server:  config.GetServerConfig(cfg, serverURL, projectFlag),
		creds:   creds,
		store:   session.NewStore(),
		notify:  notifier,
	}
	a.gw, err = gateway.New(gateway.Config{
		BaseURL:   a.server.URL,
		Tokens:    creds,
		OnExpired: a.expired,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// expired runs for every 401. The TUI swaps the handler to route the user
// to the logged-out view.
func (a *app) expired(message string) {
	a.expiredMu.Lock()
	fn := a.onExpired
	a.expiredMu.Unlock()
	if fn != nil {
		fn(message)
		return
	}
	utils.OutputError("%s Run 'ally login' to sign in again.", message)
}

func (a *app) setExpiredHandler(fn func(message string)) {
	a.expiredMu.Lock()
	a.onExpired = fn
	a.expiredMu.Unlock()
}

func (a *app) requireLogin() error {
	if !a.creds.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

func (a *app) authClient() *auth.Client {
	return auth.NewClient(a.gw, a.creds)
}

func (a *app) chat() *chat.Orchestrator {
	return chat.New(chat.Config{
		Gateway:     a.gw,
		Store:       a.store,
		Notifier:    a.notify,
		SummaryType: a.cfg.WebSearch.SummaryType,
	})
}

func (a *app) workspace() *workspace.Manager {
	return workspace.NewManager(workspace.Config{
		Gateway:  a.gw,
		Store:    a.store,
		Notifier: a.notify,
	})
}

// useConfiguredProject selects the --project / default_project value
// without asking the backend for its file list.
func (a *app) useConfiguredProject() *session.Project {
	if a.server.Project == "" {
		return nil
	}
	p := session.NewProject(a.server.Project)
	a.store.SetCurrentProject(&p)
	return &p
}

// playgroundSettings starts from the defaults, applies the config file and
// then any flag the user set explicitly.
func (a *app) playgroundSettings(o playgroundOverrides) (playground.Settings, error) {
	s := playground.DefaultSettings()
	pc := a.cfg.Playground
	if pc.Model != "" {
		s.Model = pc.Model
	}
	if pc.Temperature != nil {
		s.Temperature = *pc.Temperature
	}
	if pc.MaxTokens != 0 {
		s.MaxTokens = pc.MaxTokens
	}
	if o.Model != "" {
		s.Model = o.Model
	}
	if o.Temperature != nil {
		s.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		s.MaxTokens = *o.MaxTokens
	}
	if _, err := playground.LookupModel(s.Model); err != nil {
		return playground.Settings{}, err
	}
	return s.Normalize(), nil
}

type playgroundOverrides struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// cliNotifier prints session notices through the output router.
type cliNotifier struct{}

func (cliNotifier) Notify(n session.Notice) {
	switch n.Level {
	case session.LevelWarning:
		utils.OutputWarning("%s", n.Text)
	case session.LevelError:
		utils.OutputError("%s", n.Text)
	case session.LevelSuccess:
		utils.OutputSuccess("%s", n.Text)
	default:
		utils.OutputInfo("%s", n.Text)
	}
}

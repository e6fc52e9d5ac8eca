package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/auth"
	"github.com/navio/ally/internal/session"
)

// newTestApp points an app at handler with a fresh data dir. A non-empty
// token is stored as the logged-in user's credentials.
func newTestApp(t *testing.T, handler http.HandlerFunc, token string) (*app, *session.Recorder, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	t.Setenv("ALLY_DATA_DIR", dataDir)
	t.Setenv("ALLY_SERVER_URL", "")

	utils.OverrideCwd = t.TempDir()
	serverURL = srv.URL
	var output bytes.Buffer
	utils.SetOutputWriters(&output, &output)
	t.Cleanup(func() {
		utils.OverrideCwd = ""
		serverURL = ""
		projectFlag = ""
		utils.SetOutputWriters(nil, nil)
	})

	if token != "" {
		path, err := utils.GetCredentialsPath()
		if err != nil {
			t.Fatalf("credentials path: %v", err)
		}
		store, err := auth.NewStore(path)
		if err != nil {
			t.Fatalf("open credentials: %v", err)
		}
		if err := store.Save(auth.Credentials{AccessToken: token, Email: "ada@example.com"}); err != nil {
			t.Fatalf("save credentials: %v", err)
		}
	}

	rec := &session.Recorder{}
	a, err := newApp(rec)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a, rec, &output
}

func TestNewAppResolvesServerAndProject(t *testing.T) {
	projectFlag = "research"
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, "tok")

	if a.server.URL != serverURL {
		t.Fatalf("server URL = %q, want %q", a.server.URL, serverURL)
	}
	if a.server.Project != "research" {
		t.Fatalf("project = %q, want research", a.server.Project)
	}
	if err := a.requireLogin(); err != nil {
		t.Fatalf("requireLogin: %v", err)
	}
}

func TestRequireLoginWithoutToken(t *testing.T) {
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, "")
	if err := a.requireLogin(); err != errNotLoggedIn {
		t.Fatalf("expected errNotLoggedIn, got %v", err)
	}
}

func TestExpiredHandlerOverride(t *testing.T) {
	a, _, output := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, "tok")

	a.expired("Session expired.")
	if !bytes.Contains(output.Bytes(), []byte("ally login")) {
		t.Fatalf("expected login hint, got %q", output.String())
	}

	var got string
	a.setExpiredHandler(func(message string) { got = message })
	a.expired("again")
	if got != "again" {
		t.Fatalf("handler got %q", got)
	}
}

func TestPlaygroundSettingsPrecedence(t *testing.T) {
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, "tok")
	temp := 0.3
	a.cfg.Playground.Temperature = &temp
	a.cfg.Playground.MaxTokens = 100

	s, err := a.playgroundSettings(playgroundOverrides{})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if s.Temperature != 0.3 || s.MaxTokens != 100 || s.Model != "mixtral-8x7b" {
		t.Fatalf("unexpected settings from config: %+v", s)
	}

	flagTemp, flagMax := 2.0, 9000
	s, err = a.playgroundSettings(playgroundOverrides{Model: "llama2-70b", Temperature: &flagTemp, MaxTokens: &flagMax})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if s.Model != "llama2-70b" || s.Temperature != 1 || s.MaxTokens != 5000 {
		t.Fatalf("flags should win and be clamped: %+v", s)
	}

	if _, err := a.playgroundSettings(playgroundOverrides{Model: "gpt-9"}); err == nil {
		t.Fatal("expected unknown model error")
	}
}

func TestReportedWrapsOnce(t *testing.T) {
	err := reported(errNotLoggedIn)
	if !errors.Is(err, errReported) || !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("reported error lost its chain: %v", err)
	}
	if reported(err) != err {
		t.Fatal("expected an already reported error to be returned unchanged")
	}
	if reported(nil) != nil {
		t.Fatal("expected nil")
	}
}

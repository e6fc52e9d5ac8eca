package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/navio/ally/cmd/config"
	"github.com/navio/ally/internal/auth"
	"github.com/navio/ally/internal/chat"
	"github.com/navio/ally/internal/session"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "ok", "data": data}); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestRunProjectsListMarksDefault(t *testing.T) {
	projectFlag = "beta"
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workspace/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		writeEnvelope(t, w, []string{"alpha", "beta"})
	}, "tok")

	var out bytes.Buffer
	if err := runProjectsList(context.Background(), a, &out); err != nil {
		t.Fatalf("runProjectsList: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and two rows, got %q", out.String())
	}
	if strings.Contains(lines[2], "*") || !strings.HasPrefix(lines[2], "alpha") {
		t.Errorf("alpha row = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "beta") || !strings.HasSuffix(lines[3], "*") {
		t.Errorf("beta row = %q", lines[3])
	}
}

func TestRunProjectsListEmpty(t *testing.T) {
	a, rec, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, []string{})
	}, "tok")

	var out bytes.Buffer
	if err := runProjectsList(context.Background(), a, &out); err != nil {
		t.Fatalf("runProjectsList: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no table, got %q", out.String())
	}
	if rec.Count(session.LevelInfo) != 1 {
		t.Errorf("expected a no-projects notice, got %+v", rec.Notices())
	}
}

func TestRunProjectsListFailureIsReported(t *testing.T) {
	a, rec, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
	}, "tok")

	err := runProjectsList(context.Background(), a, &bytes.Buffer{})
	if !errors.Is(err, errReported) {
		t.Fatalf("expected a reported error, got %v", err)
	}
	if rec.Count(session.LevelError) != 1 {
		t.Fatalf("expected one error notice, got %+v", rec.Notices())
	}
}

func TestRunProjectsUseWritesDefault(t *testing.T) {
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, []string{"alpha", "beta"})
	}, "tok")

	path, err := runProjectsUse(context.Background(), a, "beta")
	if err != nil {
		t.Fatalf("runProjectsUse: %v", err)
	}
	if want := filepath.Join(a.dataDir, "ally.yaml"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.DefaultProject != "beta" {
		t.Fatalf("default_project = %q", cfg.DefaultProject)
	}

	if _, err := runProjectsUse(context.Background(), a, "gamma"); err == nil {
		t.Fatal("expected an error for an unknown project")
	}
}

func TestRunFilesList(t *testing.T) {
	projectFlag = "alpha"
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/list/" || r.URL.Query().Get("workspace_name") != "alpha" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeEnvelope(t, w, []string{"paper.pdf", "talk.mp4"})
	}, "tok")

	var out bytes.Buffer
	if err := runFilesList(context.Background(), a, &out); err != nil {
		t.Fatalf("runFilesList: %v", err)
	}
	if out.String() != "paper.pdf\ntalk.mp4\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunFilesListNeedsProject(t *testing.T) {
	calls := 0
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) { calls++ }, "tok")

	if err := runFilesList(context.Background(), a, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error without a project")
	}
	if calls != 0 {
		t.Fatalf("expected no backend call, got %d", calls)
	}
}

func TestRunChatOnce(t *testing.T) {
	projectFlag = "alpha"
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chat.QueryEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["workspace_name"] != "alpha" || body["query"] != "What is in the paper?" {
			t.Errorf("unexpected body %v", body)
		}
		writeEnvelope(t, w, "It describes llamas.")
	}, "tok")

	var out bytes.Buffer
	if err := runChatOnce(context.Background(), a, "  What is in the paper?  ", false, &out); err != nil {
		t.Fatalf("runChatOnce: %v", err)
	}
	if out.String() != "It describes llamas.\n" {
		t.Fatalf("output = %q", out.String())
	}
	snap := a.store.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[1].Content != "It describes llamas." {
		t.Fatalf("unexpected transcript %+v", snap.Messages)
	}
}

func TestRunChatOnceWebSearch(t *testing.T) {
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chat.WebSearchEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["summary_type"] != chat.DefaultSummaryType {
			t.Errorf("summary_type = %q", body["summary_type"])
		}
		writeEnvelope(t, w, map[string]string{"result": "From the web."})
	}, "tok")

	var out bytes.Buffer
	if err := runChatOnce(context.Background(), a, "news", true, &out); err != nil {
		t.Fatalf("runChatOnce: %v", err)
	}
	if out.String() != "From the web.\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunChatOnceFailure(t *testing.T) {
	a, _, output := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"model offline"}`, http.StatusBadGateway)
	}, "tok")

	var out bytes.Buffer
	err := runChatOnce(context.Background(), a, "hello", false, &out)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected a reported error, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should reach stdout, got %q", out.String())
	}
	if !strings.Contains(output.String(), chat.ErrorReply) {
		t.Fatalf("expected the error reply, got %q", output.String())
	}
	last, _ := a.store.Snapshot().LastMessage()
	if !last.Failed() || last.Content != chat.ErrorReply {
		t.Fatalf("placeholder not failed: %+v", last)
	}
}

func TestRunChatOnceUnauthorizedClearsToken(t *testing.T) {
	a, _, output := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "tok")

	err := runChatOnce(context.Background(), a, "hello", false, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if a.creds.Token() != "" {
		t.Fatal("token should be cleared")
	}
	if _, statErr := os.Stat(a.creds.Path()); !os.IsNotExist(statErr) {
		t.Fatalf("credentials file should be gone, stat err = %v", statErr)
	}
	if strings.Count(output.String(), "ally login") != 1 {
		t.Fatalf("expected exactly one expiry alert, got %q", output.String())
	}
}

func TestRunChatOnceEmptyInput(t *testing.T) {
	calls := 0
	a, rec, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) { calls++ }, "tok")

	err := runChatOnce(context.Background(), a, "   ", false, &bytes.Buffer{})
	if !errors.Is(err, chat.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if calls != 0 || rec.Count(session.LevelWarning) != 1 {
		t.Fatalf("calls = %d, notices = %+v", calls, rec.Notices())
	}
}

func resetLoginFlags(t *testing.T) {
	t.Cleanup(func() {
		loginCode, loginToken, loginExpiresAt, loginCallbackURL = "", "", "", ""
	})
}

func TestRunLoginWithToken(t *testing.T) {
	resetLoginFlags(t)
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, "")
	loginToken, loginExpiresAt = "abc", "2099-01-01T00:00:00Z"

	creds, err := runLogin(context.Background(), a, strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("runLogin: %v", err)
	}
	if creds.AccessToken != "abc" || creds.ExpiresAt.Year() != 2099 {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if !a.creds.Authenticated() {
		t.Fatal("expected to be authenticated")
	}
}

func TestRunLoginWithCode(t *testing.T) {
	resetLoginFlags(t)
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/exchange-token" || r.URL.Query().Get("auth_code") != "code-1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeEnvelope(t, w, map[string]any{"access_token": "from-code", "expires_at": 4102444800})
	}, "")
	loginCode = "code-1"

	creds, err := runLogin(context.Background(), a, strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("runLogin: %v", err)
	}
	if a.creds.Token() != "from-code" || creds.ExpiresAt.IsZero() {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestRunLoginInteractiveCallback(t *testing.T) {
	resetLoginFlags(t)
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL)
	}, "")

	var out bytes.Buffer
	in := strings.NewReader("http://localhost:5173/?access_token=xyz&email=ada%40example.com&username=Ada\n")
	creds, err := runLogin(context.Background(), a, in, &out)
	if err != nil {
		t.Fatalf("runLogin: %v", err)
	}
	if !strings.Contains(out.String(), "/auth/google-auth") {
		t.Fatalf("expected the sign-in address, got %q", out.String())
	}
	if creds.AccessToken != "xyz" || creds.Email != "ada@example.com" || creds.Name != "Ada" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestPrintStatus(t *testing.T) {
	a, _, _ := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, "")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	printStatus(&out, a, now)
	if !strings.Contains(out.String(), "logged out") || !strings.Contains(out.String(), "(none)") {
		t.Fatalf("unexpected status %q", out.String())
	}

	if err := a.creds.Save(auth.Credentials{AccessToken: "t", Email: "ada@example.com", ExpiresAt: now.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	out.Reset()
	printStatus(&out, a, now)
	if !strings.Contains(out.String(), "logged in as ada@example.com (expires in 2h0m0s)") {
		t.Fatalf("unexpected status %q", out.String())
	}

	out.Reset()
	printStatus(&out, a, now.Add(3*time.Hour))
	if !strings.Contains(out.String(), "expired at") {
		t.Fatalf("unexpected status %q", out.String())
	}
}

package utils

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogBodyContent(t *testing.T) {
	tests := []struct {
		name           string
		body           io.ReadCloser
		bodyContent    string
		shouldHaveBody bool
	}{
		{name: "nil body", body: nil, shouldHaveBody: false},
		{name: "empty body", body: io.NopCloser(bytes.NewReader(nil)), shouldHaveBody: true},
		{
			name:           "JSON body",
			bodyContent:    `{"workspace_name":"demo","query":"hello"}`,
			shouldHaveBody: true,
		},
		{
			name:           "large body truncation",
			bodyContent:    strings.Repeat("a", 2000),
			shouldHaveBody: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if tt.bodyContent != "" {
				body = io.NopCloser(strings.NewReader(tt.bodyContent))
			}

			ResetDebugLoggerForTesting()
			defer ResetDebugLoggerForTesting()
			if err := InitDebugLogger(filepath.Join(t.TempDir(), "debug.log"), false); err != nil {
				t.Fatalf("init logger: %v", err)
			}

			result := LogBodyContent(body, "test body")

			if !tt.shouldHaveBody {
				if result != nil {
					t.Errorf("Expected nil result but got non-nil")
				}
				return
			}
			restored, err := io.ReadAll(result)
			if err != nil {
				t.Fatalf("Failed to read restored body: %v", err)
			}
			if string(restored) != tt.bodyContent {
				t.Errorf("restored body mismatch: got %d bytes, want %d", len(restored), len(tt.bodyContent))
			}
		})
	}
}

func TestLogHeadersRedactsCredentials(t *testing.T) {
	ResetDebugLoggerForTesting()
	defer ResetDebugLoggerForTesting()

	logPath := filepath.Join(t.TempDir(), "headers.log")
	if err := InitDebugLogger(logPath, false); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	LogHeaders("request", http.Header{
		"Authorization": {"Bearer secret-token"},
		"Cookie":        {"session=abc123"},
		"Content-Type":  {"application/json"},
		"X-Request-Id":  {"req-1"},
	})
	CloseDebugLogger()

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	logStr := string(raw)

	for _, header := range []string{"Authorization", "Cookie"} {
		if !strings.Contains(logStr, header+": [REDACTED]") {
			t.Errorf("expected %s to be redacted:\n%s", header, logStr)
		}
	}
	for _, secret := range []string{"secret-token", "abc123"} {
		if strings.Contains(logStr, secret) {
			t.Errorf("sensitive value %q leaked:\n%s", secret, logStr)
		}
	}
	if !strings.Contains(logStr, "Content-Type: application/json") {
		t.Errorf("expected Content-Type to be logged verbatim:\n%s", logStr)
	}
}

func TestVerboseHTTPClientPreservesBodies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"echo":` + string(body) + `}`))
	}))
	defer ts.Close()

	ResetDebugLoggerForTesting()
	defer ResetDebugLoggerForTesting()
	if err := InitDebugLogger(filepath.Join(t.TempDir(), "debug.log"), false); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(`"hi"`))
	resp, err := (&VerboseHTTPClient{}).Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if string(got) != `{"echo":"hi"}` {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestPrettyServerError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"fastapi detail string", 500, `{"detail":"Error creating workspace: boom"}`, "Error creating workspace: boom"},
		{"fastapi validation list", 422, `{"detail":[{"loc":["body","query"],"msg":"field required"}]}`, "field required"},
		{"error envelope", 401, `{"error":"Token expired"}`, "Token expired"},
		{"message envelope", 400, `{"success":false,"message":"bad name"}`, "bad name"},
		{"plain text", 502, "upstream unavailable", "upstream unavailable"},
		{"empty body", 404, "", "Not Found"},
		{"unknown json", 500, `{"foo":"bar"}`, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrettyServerError(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("PrettyServerError() = %q, want %q", got, tt.want)
			}
		})
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/navio/ally/cmd/utils"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
	return nil
}

func newTestGateway(t *testing.T, srv *httptest.Server, tokens TokenSource, onExpired ExpiredFunc) *Gateway {
	t.Helper()
	g, err := New(Config{
		BaseURL:    srv.URL,
		HTTPClient: &utils.DefaultHTTPClient{},
		Tokens:     tokens,
		OnExpired:  onExpired,
	})
	require.NoError(t, err)
	return g
}

func TestSendAttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("workspace_name")
		w.Write([]byte(`{"success":true,"message":"ok","data":["a.pdf"]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, &fakeTokens{token: "tok-123"}, nil)
	payload, err := g.Send(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/file/list/",
		Query:    map[string][]string{"workspace_name": {"alpha"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, "/file/list/", gotPath)
	require.Equal(t, "alpha", gotQuery)

	var files []string
	require.NoError(t, Data(payload, &files))
	require.Equal(t, []string{"a.pdf"}, files)
}

func TestSendWithoutTokenOmitsAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, &fakeTokens{}, nil)
	_, err := g.Send(context.Background(), Request{Endpoint: "/workspace/list"})
	require.NoError(t, err)
	require.Empty(t, gotAuth)
}

func TestSendEncodesJSONBody(t *testing.T) {
	var got map[string]string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"data":"hi"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)
	var reply string
	err := g.SendJSON(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/query",
		Body:     map[string]string{"workspace_name": "alpha", "query": "hello"},
	}, &reply)
	require.NoError(t, err)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, map[string]string{"workspace_name": "alpha", "query": "hello"}, got)
	require.Equal(t, "hi", reply)
}

func TestSendRejectsInvalidRequests(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty endpoint", Request{Method: http.MethodGet}},
		{"blank endpoint", Request{Method: http.MethodGet, Endpoint: "  "}},
		{"unknown method", Request{Method: "FETCH", Endpoint: "/chat/query"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Send(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	require.Zero(t, hits)
}

func TestLatestCallWinsPerEndpoint(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "first") {
			close(started)
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		w.Write([]byte(`{"success":true,"data":"second reply"}`))
	}))
	defer srv.Close()
	defer close(release)

	g := newTestGateway(t, srv, nil, nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := g.Send(context.Background(), Request{Method: http.MethodPost, Endpoint: "/chat/query", Body: map[string]string{"query": "first"}})
		firstErr <- err
	}()
	<-started

	var reply string
	err := g.SendJSON(context.Background(), Request{Method: http.MethodPost, Endpoint: "/chat/query", Body: map[string]string{"query": "second"}}, &reply)
	require.NoError(t, err)
	require.Equal(t, "second reply", reply)

	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, ErrSuperseded)
		require.True(t, IsCanceled(err))
		require.True(t, IsSuperseded(err))
	case <-time.After(5 * time.Second):
		t.Fatal("first call was not aborted")
	}
	require.Zero(t, g.Outstanding())
}

func TestCancelAbortsOutstandingCall(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)
	g.Cancel("/chat/query")

	callErr := make(chan error, 1)
	go func() {
		_, err := g.Send(context.Background(), Request{Method: http.MethodPost, Endpoint: "/chat/query"})
		callErr <- err
	}()
	<-started
	g.Cancel("/chat/web-search")
	require.Equal(t, 1, g.Outstanding())

	g.Cancel("/chat/query?stream=false")
	select {
	case err := <-callErr:
		require.True(t, IsCanceled(err))
		require.False(t, IsSuperseded(err))
	case <-time.After(5 * time.Second):
		t.Fatal("call was not aborted")
	}
	require.Zero(t, g.Outstanding())
}

func TestDifferentEndpointsAreIndependent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/file/list/" {
			close(started)
			<-release
		}
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)

	filesErr := make(chan error, 1)
	go func() {
		_, err := g.Send(context.Background(), Request{Endpoint: "/file/list/"})
		filesErr <- err
	}()
	<-started

	_, err := g.Send(context.Background(), Request{Endpoint: "/workspace/list"})
	require.NoError(t, err)
	close(release)

	select {
	case err := <-filesErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("file list call did not finish")
	}
}

func TestQueryStringDoesNotSplitEndpoint(t *testing.T) {
	require.Equal(t, "/file/list/", endpointKey("/file/list/?workspace_name=a"))
	require.Equal(t, "/chat/query", endpointKey("/chat/query"))
}

func TestCallerCancellationIsReportedAsCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Send(ctx, Request{Endpoint: "/chat/query"})
	require.True(t, IsCanceled(err))
	require.False(t, IsSuperseded(err))
}

func TestUnauthorizedClearsTokenAndNotifiesOnce(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"server message", `{"detail":"Token expired"}`, "Token expired"},
		{"no message", ``, DefaultAuthMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tokens := &fakeTokens{token: "stale"}
			var alerts []string
			g := newTestGateway(t, srv, tokens, func(msg string) { alerts = append(alerts, msg) })

			_, err := g.Send(context.Background(), Request{Endpoint: "/workspace/list"})
			require.True(t, IsUnauthorized(err))
			require.Equal(t, http.StatusUnauthorized, StatusOf(err))
			require.Equal(t, tt.wantMsg, Message(err))
			require.Empty(t, tokens.Token())
			require.Equal(t, 1, tokens.cleared)
			require.Equal(t, []string{tt.wantMsg}, alerts)
		})
	}
}

func TestServerErrorsAreNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"workspace exploded"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)
	_, err := g.Send(context.Background(), Request{Method: http.MethodPost, Endpoint: "/workspace/create"})

	var re *RequestError
	require.True(t, errors.As(err, &re))
	require.Equal(t, http.StatusInternalServerError, re.Status)
	require.Equal(t, "workspace exploded", re.Message)
	require.Equal(t, http.MethodPost, re.Method)
	require.NotEmpty(t, re.RequestID)
	require.False(t, IsCanceled(err))
	require.Contains(t, err.Error(), "server returned 500")
}

func TestTransportErrorHasNoStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	g, err := New(Config{BaseURL: url, HTTPClient: &utils.DefaultHTTPClient{}})
	require.NoError(t, err)

	_, err = g.Send(context.Background(), Request{Endpoint: "/workspace/list"})
	require.Error(t, err)
	require.Zero(t, StatusOf(err))
	require.False(t, IsCanceled(err))
}

func TestMultipartUpload(t *testing.T) {
	var gotField, gotName, gotContent, gotWorkspace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWorkspace = r.URL.Query().Get("workspace_name")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotName = headers[0].Filename
			f, _ := headers[0].Open()
			data, _ := io.ReadAll(f)
			f.Close()
			gotContent = string(data)
		}
		w.Write([]byte(`{"success":true,"message":"uploaded"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, nil, nil)
	_, err := g.Send(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/file/upload/",
		Query:    map[string][]string{"workspace_name": {"alpha"}},
		Body: &Multipart{Files: []FilePart{
			{Field: "files", Name: "notes.pdf", Content: strings.NewReader("%PDF-1.4")},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "alpha", gotWorkspace)
	require.Equal(t, "files", gotField)
	require.Equal(t, "notes.pdf", gotName)
	require.Equal(t, "%PDF-1.4", gotContent)
}

func TestData(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		var out struct {
			Result string `json:"result"`
		}
		require.NoError(t, Data([]byte(`{"success":true,"message":"","data":{"result":"found"}}`), &out))
		require.Equal(t, "found", out.Result)
	})
	t.Run("data without success", func(t *testing.T) {
		var out string
		require.NoError(t, Data([]byte(`{"data":"hi there"}`), &out))
		require.Equal(t, "hi there", out)
	})
	t.Run("nested data without success", func(t *testing.T) {
		var out struct {
			Result string `json:"result"`
		}
		require.NoError(t, Data([]byte(`{"data":{"result":"summary"}}`), &out))
		require.Equal(t, "summary", out.Result)
	})
	t.Run("null data", func(t *testing.T) {
		out := "unchanged"
		require.NoError(t, Data([]byte(`{"data":null}`), &out))
		require.Equal(t, "unchanged", out)
	})
	t.Run("successful envelope without data", func(t *testing.T) {
		out := "unchanged"
		require.NoError(t, Data([]byte(`{"success":true,"message":"deleted"}`), &out))
		require.Equal(t, "unchanged", out)
	})
	t.Run("bare list", func(t *testing.T) {
		var out []string
		require.NoError(t, Data([]byte(`["a","b"]`), &out))
		require.Equal(t, []string{"a", "b"}, out)
	})
	t.Run("unsuccessful envelope", func(t *testing.T) {
		var out string
		err := Data([]byte(`{"success":false,"message":"no such workspace"}`), &out)
		require.Error(t, err)
		require.Equal(t, "no such workspace", Message(err))
	})
	t.Run("empty body", func(t *testing.T) {
		var out string
		require.Error(t, Data(nil, &out))
	})
	t.Run("object without envelope", func(t *testing.T) {
		var out map[string]int
		require.NoError(t, Data([]byte(`{"count":3}`), &out))
		require.Equal(t, 3, out["count"])
	})
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// HTTPClient interface for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the default HTTP client. A zero Timeout means the
// request lives until its context is cancelled.
type DefaultHTTPClient struct{ Timeout time.Duration }

// Do implements the HTTPClient interface
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	client := &http.Client{Timeout: c.Timeout}
	return client.Do(req)
}

// Backend calls are never timed out client-side; superseding calls cancel them.
var httpClient HTTPClient = &DefaultHTTPClient{}

// LogBodyContent reads and logs a body, returning a replacement reader with
// the same content. Large bodies are truncated in the log.
func LogBodyContent(body io.ReadCloser, label string) io.ReadCloser {
	if body == nil {
		LogDebug(fmt.Sprintf("  -> %s: <nil>", label))
		return nil
	}

	bodyBytes, err := io.ReadAll(body)
	body.Close()

	if err != nil {
		LogDebug(fmt.Sprintf("  -> %s: <error reading: %v>", label, err))
		return io.NopCloser(bytes.NewReader([]byte{}))
	}

	if len(bodyBytes) == 0 {
		LogDebug(fmt.Sprintf("  -> %s: <empty>", label))
		return io.NopCloser(bytes.NewReader(bodyBytes))
	}

	const maxLogSize = 1024
	bodyStr := string(bodyBytes)
	if len(bodyStr) > maxLogSize {
		bodyStr = bodyStr[:maxLogSize] + "... (truncated)"
	}

	LogDebug(fmt.Sprintf("  -> %s: %s", label, bodyStr))
	return io.NopCloser(bytes.NewReader(bodyBytes))
}

// VerboseHTTPClient wraps another HTTPClient and logs request/response basics and headers.
type VerboseHTTPClient struct{ Inner HTTPClient }

func (v *VerboseHTTPClient) Do(req *http.Request) (*http.Response, error) {
	inner := v.Inner
	if inner == nil {
		inner = &DefaultHTTPClient{}
	}
	LogDebug(fmt.Sprintf("HTTP %s %s", req.Method, req.URL.String()))
	LogHeaders("request", req.Header)

	// Uploads are binary; only their size is worth logging.
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		LogDebug(fmt.Sprintf("  -> request body: <multipart, %d bytes>", req.ContentLength))
	} else {
		req.Body = LogBodyContent(req.Body, "request body")
	}

	resp, err := inner.Do(req)
	if err != nil {
		LogDebug(fmt.Sprintf("  -> error: %v", err))
		return nil, err
	}
	LogDebug(fmt.Sprintf("  -> %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	LogHeaders("response", resp.Header)

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "text/event-stream") || strings.Contains(contentType, "application/x-ndjson") {
		LogDebug("  -> response body: <streaming - not logged>")
	} else {
		resp.Body = LogBodyContent(resp.Body, "response body")
	}

	return resp, nil
}

func GetHTTPClient() HTTPClient {
	return &VerboseHTTPClient{Inner: httpClient}
}

func SetHTTPClientForTest(client HTTPClient) {
	httpClient = client
}

func LogHeaders(kind string, hdr http.Header) {
	if len(hdr) == 0 {
		return
	}
	sensitiveHeaders := map[string]struct{}{
		"authorization":       {},
		"proxy-authorization": {},
		"cookie":              {},
		"set-cookie":          {},
		"x-auth-token":        {},
		"x-access-token":      {},
		"x-refresh-token":     {},
		"x-csrf-token":        {},
		"www-authenticate":    {},
	}
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, isSensitive := sensitiveHeaders[strings.ToLower(k)]
		for _, v := range hdr.Values(k) {
			if isSensitive {
				LogDebug(fmt.Sprintf("  %s header: %s: [REDACTED]", kind, k))
			} else {
				LogDebug(fmt.Sprintf("  %s header: %s: %s", kind, k, v))
			}
		}
	}
}

// PrettyServerError extracts a readable message from an error response body.
// It understands the backend's FastAPI {"detail":...} shape as well as the
// {"message":...} and {"error":...} envelopes.
func PrettyServerError(status int, body []byte) string {
	var env struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		switch v := env.Detail.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		case []any:
			if len(v) > 0 {
				if m, ok := v[0].(map[string]any); ok {
					if s, ok := m["msg"].(string); ok && s != "" {
						return s
					}
					if s, ok := m["message"].(string); ok && s != "" {
						return s
					}
				}
			}
		}
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if s == "" || strings.HasPrefix(s, "{") {
		if text := http.StatusText(status); text != "" {
			return text
		}
		return fmt.Sprintf("status %d", status)
	}
	return s
}

// Package gateway wraps every outbound backend call. It attaches the bearer
// token, keeps only the latest call per endpoint alive, and normalizes
// failures into *RequestError values.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/navio/ally/cmd/utils"
)

// TokenSource is the durable token storage the gateway reads from and
// clears on a 401.
type TokenSource interface {
	Token() string
	ClearToken() error
}

// ExpiredFunc is invoked once for every 401 response after the token has
// been cleared. It should alert the user and send them to the logged-out view.
type ExpiredFunc func(message string)

// Config configures a Gateway.
type Config struct {
	BaseURL    string
	HTTPClient utils.HTTPClient
	Tokens     TokenSource
	OnExpired  ExpiredFunc
}

// Request describes one backend call.
type Request struct {
	Method   string
	Endpoint string
	Header   http.Header
	// Body is sent as-is when it is []byte or io.Reader, encoded as
	// multipart/form-data when it is *Multipart, and JSON-encoded otherwise.
	Body  any
	Query url.Values
}

type call struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// Gateway sends requests to the backend.
type Gateway struct {
	base      *url.URL
	client    utils.HTTPClient
	tokens    TokenSource
	onExpired ExpiredFunc

	mu       sync.Mutex
	seq      uint64
	inflight map[string]call
}

// New builds a Gateway. A nil HTTPClient uses utils.GetHTTPClient().
func New(cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidRequest)
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = utils.GetHTTPClient()
	}
	return &Gateway{
		base:      base,
		client:    client,
		tokens:    cfg.Tokens,
		onExpired: cfg.OnExpired,
		inflight:  make(map[string]call),
	}, nil
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// endpointKey is the path part of an endpoint; inline query strings do not
// make two calls distinct.
func endpointKey(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// Send dispatches req and returns the raw response payload. A newer Send to
// the same endpoint aborts this one, which then returns ErrSuperseded.
func (g *Gateway) Send(ctx context.Context, req Request) ([]byte, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !validMethods[method] {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, req.Method)
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	}

	key := endpointKey(req.Endpoint)
	callCtx, id := g.begin(ctx, key)
	defer g.finish(key, id)

	httpReq, err := g.buildRequest(callCtx, method, req)
	if err != nil {
		return nil, err
	}
	requestID := httpReq.Header.Get("X-Request-ID")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if cerr := g.canceled(callCtx, ctx); cerr != nil {
			utils.LogDebug(fmt.Sprintf("gateway: %s %s canceled: %v", method, req.Endpoint, cerr))
			return nil, cerr
		}
		return nil, &RequestError{Method: method, Endpoint: req.Endpoint, Message: err.Error(), RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if cerr := g.canceled(callCtx, ctx); cerr != nil {
			return nil, cerr
		}
		return nil, &RequestError{Method: method, Endpoint: req.Endpoint, Status: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err), RequestID: requestID, Err: err}
	}

	// A call that lost the race to a newer one must not apply its result.
	if !g.current(key, id) {
		return nil, ErrSuperseded
	}

	if resp.StatusCode == http.StatusUnauthorized {
		msg := utils.PrettyServerError(resp.StatusCode, body)
		if msg == "" || msg == http.StatusText(http.StatusUnauthorized) {
			msg = DefaultAuthMessage
		}
		g.expire(msg)
		return nil, &RequestError{Method: method, Endpoint: req.Endpoint, Status: resp.StatusCode, Message: msg, RequestID: requestID, Err: ErrUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{
			Method:    method,
			Endpoint:  req.Endpoint,
			Status:    resp.StatusCode,
			Message:   utils.PrettyServerError(resp.StatusCode, body),
			RequestID: requestID,
		}
	}
	return body, nil
}

// SendJSON sends req and decodes the unwrapped payload into out.
func (g *Gateway) SendJSON(ctx context.Context, req Request, out any) error {
	payload, err := g.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := Data(payload, out); err != nil {
		var re *RequestError
		if errors.As(err, &re) {
			re.Method, re.Endpoint = strings.ToUpper(req.Method), req.Endpoint
		}
		return err
	}
	return nil
}

// Cancel aborts the outstanding call to endpoint, if any.
func (g *Gateway) Cancel(endpoint string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.inflight[endpointKey(endpoint)]; ok {
		c.cancel(ErrCanceled)
		delete(g.inflight, endpointKey(endpoint))
	}
}

// Outstanding reports how many endpoints have a call in flight.
func (g *Gateway) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

func (g *Gateway) begin(ctx context.Context, key string) (context.Context, uint64) {
	callCtx, cancel := context.WithCancelCause(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.inflight[key]; ok {
		utils.LogDebug(fmt.Sprintf("gateway: superseding outstanding call to %s", key))
		prev.cancel(ErrSuperseded)
	}
	g.seq++
	g.inflight[key] = call{id: g.seq, cancel: cancel}
	return callCtx, g.seq
}

func (g *Gateway) finish(key string, id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.inflight[key]; ok && c.id == id {
		c.cancel(nil)
		delete(g.inflight, key)
	}
}

func (g *Gateway) current(key string, id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.inflight[key]
	return ok && c.id == id
}

// canceled maps an aborted call to ErrSuperseded or ErrCanceled, or returns
// nil when the failure was not a cancellation.
func (g *Gateway) canceled(callCtx, parent context.Context) error {
	if callCtx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(callCtx), ErrSuperseded) {
		return ErrSuperseded
	}
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCanceled, parent.Err())
	}
	return ErrCanceled
}

func (g *Gateway) expire(message string) {
	if g.tokens != nil {
		if err := g.tokens.ClearToken(); err != nil {
			utils.LogDebug(fmt.Sprintf("gateway: failed to clear token: %v", err))
		}
	}
	if g.onExpired != nil {
		g.onExpired(message)
	}
}

func (g *Gateway) buildRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimPrefix(req.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: parse endpoint %q: %v", ErrInvalidRequest, req.Endpoint, err)
	}
	target := g.base.ResolveReference(ref)
	if len(req.Query) > 0 {
		q := target.Query()
		for k, vals := range req.Query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	// A caller-supplied multipart header lacks the boundary; ours wins.
	if strings.HasPrefix(contentType, "multipart/") {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if g.tokens != nil {
		if token := g.tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	case *Multipart:
		return b.encode()
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// Package chat drives a chat exchange: it appends the user's message and a
// loading placeholder, asks the backend, and settles the placeholder.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/session"
)

const (
	QueryEndpoint     = "/chat/query"
	WebSearchEndpoint = "/chat/web-search"

	// DefaultSummaryType is the web-search summary the backend is asked for.
	DefaultSummaryType = "comprehensive"

	// ErrorReply replaces the placeholder when a reply cannot be obtained.
	ErrorReply = "Sorry, I couldn't get a response. Please try again."

	noProjectNotice  = "No project selected. Replies will not use your project files."
	emptyInputNotice = "Please enter a message."
)

var (
	// ErrEmptyInput is returned when the trimmed input is empty.
	ErrEmptyInput = errors.New("message is empty")
	// ErrNothingToRetry is returned by Retry when the last reply did not fail.
	ErrNothingToRetry = errors.New("no failed message to retry")
	// ErrNoSearchResult is returned when a web search reply carries no result.
	ErrNoSearchResult = errors.New("web search returned no result")
)

// Sender is the part of the gateway the orchestrator needs.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) ([]byte, error)
	Cancel(endpoint string)
}

// Config wires an Orchestrator.
type Config struct {
	Gateway     Sender
	Store       *session.Store
	Notifier    session.Notifier
	SummaryType string
}

// Orchestrator owns the pending input and turns submissions into exchanges
// recorded in the session store.
type Orchestrator struct {
	gw          Sender
	store       *session.Store
	notify      session.Notifier
	summaryType string

	mu       sync.Mutex
	input    string
	lastText string
	lastWeb  bool
}

// New builds an Orchestrator.
func New(cfg Config) *Orchestrator {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = session.Discard
	}
	summary := cfg.SummaryType
	if summary == "" {
		summary = DefaultSummaryType
	}
	return &Orchestrator{
		gw:          cfg.Gateway,
		store:       cfg.Store,
		notify:      notifier,
		summaryType: summary,
	}
}

// SetInput replaces the pending input.
func (o *Orchestrator) SetInput(text string) {
	o.mu.Lock()
	o.input = text
	o.mu.Unlock()
}

// Input returns the pending input.
func (o *Orchestrator) Input() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input
}

// Submit starts an exchange from the pending input. The user message and a
// loading placeholder are in the store when Submit returns; the returned
// Turn performs the backend call. Submit returns session.ErrBusy without
// touching anything while an earlier reply is outstanding.
func (o *Orchestrator) Submit(webSearch bool) (*Turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	text := strings.TrimSpace(o.input)
	if text == "" {
		o.notify.Notify(session.Notice{Level: session.LevelWarning, Text: emptyInputNotice})
		return nil, ErrEmptyInput
	}
	return o.begin(text, webSearch)
}

// begin must be called with o.mu held.
func (o *Orchestrator) begin(text string, webSearch bool) (*Turn, error) {
	placeholder, err := o.store.BeginExchange(session.UserMessage(text))
	if err != nil {
		return nil, err
	}
	o.input = ""
	o.lastText, o.lastWeb = text, webSearch

	project := o.store.CurrentProject()
	if project == nil {
		o.notify.Notify(session.Notice{Level: session.LevelWarning, Text: noProjectNotice})
	}

	t := &Turn{
		o:             o,
		query:         text,
		webSearch:     webSearch,
		placeholderID: placeholder.ID,
	}
	if project != nil {
		t.workspace = project.Value
	}
	utils.LogDebug(fmt.Sprintf("chat: submitted (web search: %v, workspace: %q)", webSearch, t.workspace))
	return t, nil
}

// SubmitNewMessage submits the pending input and waits for the reply.
func (o *Orchestrator) SubmitNewMessage(ctx context.Context, webSearch bool) (Outcome, error) {
	turn, err := o.Submit(webSearch)
	if err != nil {
		return Outcome{}, err
	}
	return turn.Resolve(ctx), nil
}

// Retry resubmits the last message when its reply failed. It is only ever
// triggered by the user.
func (o *Orchestrator) Retry(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	last, ok := o.store.Snapshot().LastMessage()
	if !ok || !last.Failed() || o.lastText == "" {
		o.mu.Unlock()
		return Outcome{}, ErrNothingToRetry
	}
	turn, err := o.begin(o.lastText, o.lastWeb)
	o.mu.Unlock()
	if err != nil {
		return Outcome{}, err
	}
	return turn.Resolve(ctx), nil
}

// Clear starts a new conversation. It fails with session.ErrBusy while a
// reply is outstanding.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.ClearMessages(); err != nil {
		return err
	}
	o.lastText, o.lastWeb = "", false
	return nil
}

// Abort cancels the outstanding reply, if any. Its turn settles as
// cancelled.
func (o *Orchestrator) Abort() {
	o.gw.Cancel(QueryEndpoint)
	o.gw.Cancel(WebSearchEndpoint)
}

// Turn is one submitted exchange waiting for its reply.
type Turn struct {
	o             *Orchestrator
	query         string
	webSearch     bool
	workspace     string
	placeholderID string
	once          sync.Once
	outcome       Outcome
}

// Query returns the submitted text.
func (t *Turn) Query() string { return t.query }

// WebSearch reports whether the turn queries the web instead of the project.
func (t *Turn) WebSearch() bool { return t.webSearch }

// Resolve issues the turn's single backend call and settles the
// placeholder. Calling it again returns the first outcome.
func (t *Turn) Resolve(ctx context.Context) Outcome {
	t.once.Do(func() {
		t.outcome = t.resolve(ctx)
	})
	return t.outcome
}

type queryRequest struct {
	WorkspaceName string `json:"workspace_name"`
	Query         string `json:"query"`
}

type webSearchRequest struct {
	Query       string `json:"query"`
	SummaryType string `json:"summary_type"`
}

type webSearchResult struct {
	Result string `json:"result"`
}

func (t *Turn) resolve(ctx context.Context) Outcome {
	reply, err := t.fetch(ctx)
	if err == nil {
		t.o.store.UpdateMessage(t.placeholderID, session.Resolved(reply))
		return Outcome{Kind: OutcomeResolved, Reply: reply}
	}

	t.o.store.UpdateMessage(t.placeholderID, session.Failed(ErrorReply))
	if gateway.IsCanceled(err) {
		utils.LogDebug(fmt.Sprintf("chat: reply canceled: %v", err))
		return Outcome{Kind: OutcomeCancelled, Err: err}
	}
	utils.LogDebug(fmt.Sprintf("chat: reply failed: %v", err))
	return Outcome{Kind: OutcomeFailed, Err: err}
}

func (t *Turn) fetch(ctx context.Context) (string, error) {
	if t.webSearch {
		payload, err := t.o.gw.Send(ctx, gateway.Request{
			Method:   http.MethodPost,
			Endpoint: WebSearchEndpoint,
			Body:     webSearchRequest{Query: t.query, SummaryType: t.o.summaryType},
		})
		if err != nil {
			return "", err
		}
		var res webSearchResult
		if err := gateway.Data(payload, &res); err != nil {
			return "", err
		}
		if strings.TrimSpace(res.Result) == "" {
			return "", ErrNoSearchResult
		}
		return res.Result, nil
	}

	payload, err := t.o.gw.Send(ctx, gateway.Request{
		Method:   http.MethodPost,
		Endpoint: QueryEndpoint,
		Body:     queryRequest{WorkspaceName: t.workspace, Query: t.query},
	})
	if err != nil {
		return "", err
	}
	var reply string
	if err := gateway.Data(payload, &reply); err != nil {
		return "", err
	}
	return reply, nil
}

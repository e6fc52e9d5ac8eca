// Package playground is a model sandbox with its own transcript. It does
// not depend on projects and does not share the chat session store.
package playground

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/session"
)

// QueryEndpoint receives playground prompts.
const QueryEndpoint = "/playground/query"

// ErrorReply is the assistant entry appended when the model cannot answer.
const ErrorReply = "Sorry, the model couldn't respond. Please try again."

// ErrEmptyInput is returned when the trimmed input is empty.
var ErrEmptyInput = errors.New("message is empty")

// Sender is the part of the gateway the playground needs.
type Sender interface {
	Send(ctx context.Context, req gateway.Request) ([]byte, error)
}

// Metrics describe how a reply was produced.
type Metrics struct {
	TimeToFirstByte time.Duration
	Total           time.Duration
	Tokens          int // approximate
}

// Message is a playground transcript entry. Replies carry Metrics.
type Message struct {
	session.Message
	Metrics *Metrics
}

// Session is one playground conversation.
type Session struct {
	gw  Sender
	now func() time.Time

	mu        sync.Mutex
	messages  []Message
	input     string
	role      session.Role
	streaming bool
	settings  Settings
}

// New builds a Session using settings (normalized).
func New(gw Sender, settings Settings) *Session {
	return &Session{
		gw:       gw,
		now:      time.Now,
		role:     session.RoleUser,
		settings: settings.Normalize(),
	}
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Role is who the next message is authored as.
func (s *Session) Role() session.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// ToggleRole switches between authoring user and assistant turns. The
// pending input is cleared.
func (s *Session) ToggleRole() session.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = s.role.Toggle()
	s.input = ""
	return s.role
}

// Streaming reports whether a reply is outstanding.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m
		if m.Metrics != nil {
			metrics := *m.Metrics
			out[i].Metrics = &metrics
		}
	}
	return out
}

// Clear empties the transcript unless a reply is outstanding.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return session.ErrBusy
	}
	s.messages = nil
	return nil
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetModel selects one of Models.
func (s *Session) SetModel(name string) error {
	if _, err := LookupModel(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings.Model = name
	s.mu.Unlock()
	return nil
}

// SetTemperature stores v clamped to [0, 1] and returns the stored value.
func (s *Session) SetTemperature(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Temperature = clampFloat(v, MinTemperature, MaxTemperature)
	return s.settings.Temperature
}

// SetMaxTokens stores n clamped to [1, 5000] and returns the stored value.
func (s *Session) SetMaxTokens(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.MaxTokens = clampInt(n, MinMaxTokens, MaxMaxTokens)
	return s.settings.MaxTokens
}

func (s *Session) SetTopP(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.TopP = clampFloat(v, 0, 1)
	return s.settings.TopP
}

func (s *Session) SetTopK(k int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.TopK = clampInt(k, MinTopK, MaxTopK)
	return s.settings.TopK
}

type queryRequest struct {
	ModelName   string            `json:"model_name"`
	QueryData   map[string]string `json:"query_data"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
}

// Send appends the pending input as a message authored by the current role
// and asks the model to answer. The reply, or a failed entry, is appended
// and returned. Send fails with session.ErrBusy while a reply is outstanding.
func (s *Session) Send(ctx context.Context) (Message, error) {
	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	if text == "" {
		s.mu.Unlock()
		return Message{}, ErrEmptyInput
	}
	if s.streaming {
		s.mu.Unlock()
		return Message{}, session.ErrBusy
	}
	authored := Message{Message: session.NewMessage(s.role, text)}
	authored.CreatedAt = s.now()
	s.messages = append(s.messages, authored)
	s.input = ""
	s.streaming = true
	settings := s.settings
	role := s.role
	s.mu.Unlock()

	reply, metrics, err := s.query(ctx, settings, role, text)

	var msg Message
	if err != nil {
		if !gateway.IsCanceled(err) {
			utils.LogDebug(fmt.Sprintf("playground: query failed: %v", err))
		}
		msg = Message{Message: session.NewMessage(session.RoleAssistant, ErrorReply)}
		msg.Status = session.StatusFailed
	} else {
		msg = Message{Message: session.NewMessage(session.RoleAssistant, reply), Metrics: &metrics}
	}
	msg.CreatedAt = s.now()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.streaming = false
	s.mu.Unlock()
	return msg, err
}

func (s *Session) query(ctx context.Context, settings Settings, role session.Role, text string) (string, Metrics, error) {
	start := s.now()
	var firstByte time.Duration
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = s.now().Sub(start) },
	}

	payload, err := s.gw.Send(httptrace.WithClientTrace(ctx, trace), gateway.Request{
		Method:   http.MethodPost,
		Endpoint: QueryEndpoint,
		Body: queryRequest{
			ModelName:   settings.Model,
			QueryData:   map[string]string{string(role): text},
			MaxTokens:   settings.MaxTokens,
			Temperature: settings.Temperature,
		},
	})
	if err != nil {
		return "", Metrics{}, err
	}
	var reply string
	if err := gateway.Data(payload, &reply); err != nil {
		return "", Metrics{}, err
	}

	total := s.now().Sub(start)
	if firstByte == 0 || firstByte > total {
		firstByte = total
	}
	return reply, Metrics{TimeToFirstByte: firstByte, Total: total, Tokens: approxTokens(reply)}, nil
}

// approxTokens estimates the token count at four characters per token.
func approxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

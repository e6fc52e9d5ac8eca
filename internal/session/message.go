// Package session holds the client-side state shared by the chat screen:
// the transcript, the project list, the current project and its files.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Toggle returns the other role.
func (r Role) Toggle() Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}

// Status is the lifecycle state of a message. A message is either settled,
// waiting for its content, or failed, so "loading and failed" cannot be
// expressed.
type Status int

const (
	StatusDone Status = iota
	StatusLoading
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusFailed:
		return "failed"
	default:
		return "done"
	}
}

// Message is one transcript entry.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Sources   []string
	Status    Status
	CreatedAt time.Time
}

func (m Message) Loading() bool { return m.Status == StatusLoading }
func (m Message) Failed() bool  { return m.Status == StatusFailed }

// NewMessage builds a settled message.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Status:    StatusDone,
		CreatedAt: time.Now(),
	}
}

// UserMessage builds a settled user message.
func UserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// Placeholder builds the loading assistant entry appended while a reply is
// outstanding.
func Placeholder() Message {
	m := NewMessage(RoleAssistant, "")
	m.Sources = []string{}
	m.Status = StatusLoading
	return m
}

// Patch is a partial update applied to one message. Nil fields are
// left untouched.
type Patch struct {
	Content *string
	Sources []string
	Status  *Status
}

// Resolved settles a placeholder with its content.
func Resolved(content string, sources ...string) Patch {
	done := StatusDone
	p := Patch{Content: &content, Status: &done}
	if len(sources) > 0 {
		p.Sources = sources
	}
	return p
}

// Failed marks a placeholder as failed with a user-facing text.
func Failed(content string) Patch {
	failed := StatusFailed
	return Patch{Content: &content, Status: &failed}
}

func (p Patch) apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Sources != nil {
		m.Sources = append([]string(nil), p.Sources...)
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
}

func (m Message) clone() Message {
	if m.Sources != nil {
		m.Sources = append([]string{}, m.Sources...)
	}
	return m
}

// Project is a backend workspace. Value identifies it, Label is shown.
type Project struct {
	Value string
	Label string
}

// NewProject builds a project whose label is its name, as the backend only
// knows workspace names.
func NewProject(name string) Project {
	return Project{Value: name, Label: name}
}

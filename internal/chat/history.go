package chat

import (
	"strings"
	"sync"
	"time"
)

// Roles of history messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxMessages bounds the history when no size is given.
const DefaultMaxMessages = 100

// Message is one side of a conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is an ordered, bounded list of messages. The oldest messages are
// dropped once the limit is reached.
type History struct {
	mu       sync.RWMutex
	messages []Message
	max      int
}

// NewHistory creates a history holding at most maxMessages messages.
func NewHistory(maxMessages int) *History {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &History{max: maxMessages}
}

// AddUser records a user message.
func (h *History) AddUser(content string) {
	h.add(RoleUser, content)
}

// AddAssistant records a model reply.
func (h *History) AddAssistant(content string) {
	h.add(RoleAssistant, content)
}

func (h *History) add(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, Message{Role: role, Content: content, Timestamp: time.Now()})
	if len(h.messages) > h.max {
		h.messages = h.messages[len(h.messages)-h.max:]
	}
}

// Recent returns the last n messages, oldest first. n <= 0 returns all.
func (h *History) Recent(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]Message, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// Prompt prefixes question with the conversation so far, if any.
func (h *History) Prompt(question string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.messages) == 0 {
		return question
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for _, m := range h.messages {
		if m.Role == RoleUser {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nCurrent question:\n")
	sb.WriteString(question)
	return sb.String()
}

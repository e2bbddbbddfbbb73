// Package session holds the per-user conversation state used to build
// each chat-completion request: an ordered history of turns plus an
// optional custom system prompt.
package session

import "sync"

// Role of a conversation turn, matching the chat-completion wire format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

const (
	defaultMaxTurns = 20
	defaultMaxBytes = 8192
)

// Store maps user ids to conversations. Conversations are created lazily
// and never shared across users; operations on different users proceed
// independently.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*conversation

	maxTurns int
	maxBytes int
}

// conversation is the state for one user. Its mutex serializes all
// mutations for that user while other users stay unblocked.
type conversation struct {
	mu      sync.Mutex
	prompt  string
	history []Message
}

// NewStore creates a Store with the given bounds. Non-positive bounds
// fall back to defaults; history is always capped to keep memory and
// request payloads bounded.
func NewStore(maxTurns, maxBytes int) *Store {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Store{
		sessions: make(map[string]*conversation),
		maxTurns: maxTurns,
		maxBytes: maxBytes,
	}
}

// AppendUserTurn records a user turn and returns the full message list
// ready for the chat collaborator: the custom prompt (if set) as the
// leading system turn followed by the bounded history. Eviction happens
// here, dropping the oldest turns first; the prompt is never evicted.
func (s *Store) AppendUserTurn(userID, text string) []Message {
	c := s.get(userID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, Message{Role: RoleUser, Content: text})
	c.evict(s.maxTurns, s.maxBytes)
	return c.snapshot()
}

// AppendAssistantTurn records the assistant's reply to the latest turn.
func (s *Store) AppendAssistantTurn(userID, text string) {
	c := s.get(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Message{Role: RoleAssistant, Content: text})
}

// ClearHistory empties the user's history. The custom prompt survives:
// clearing wipes the conversation, not the explicitly set intent.
func (s *Store) ClearHistory(userID string) {
	c := s.get(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// SetPrompt overwrites the user's custom system prompt.
func (s *Store) SetPrompt(userID, promptText string) {
	c := s.get(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = promptText
}

// Messages returns the current message list without mutating state.
func (s *Store) Messages(userID string) []Message {
	c := s.get(userID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (s *Store) get(userID string) *conversation {
	s.mu.RLock()
	c := s.sessions[userID]
	s.mu.RUnlock()
	if c != nil {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.sessions[userID]; c == nil {
		c = &conversation{}
		s.sessions[userID] = c
	}
	return c
}

// evict drops the oldest turns until both the turn count and the
// estimated byte size fit the bounds. The last turn is always kept.
func (c *conversation) evict(maxTurns, maxBytes int) {
	for len(c.history) > maxTurns {
		c.history = c.history[1:]
	}
	for len(c.history) > 1 && c.size() > maxBytes {
		c.history = c.history[1:]
	}
}

func (c *conversation) size() int {
	total := 0
	for _, m := range c.history {
		total += len(m.Content)
	}
	return total
}

func (c *conversation) snapshot() []Message {
	msgs := make([]Message, 0, len(c.history)+1)
	if c.prompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: c.prompt})
	}
	return append(msgs, c.history...)
}

package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/korylprince/agent-neo/api"
	"go.uber.org/zap"
)

// RatingValues are the allowed rating values
var RatingValues = []string{"Good", "Bad"}

// MaxRatingComment is the longest comment accepted with a rating
const MaxRatingComment = 2000

// EventType is the kind of change an Event describes
type EventType string

// Event types
const (
	EventAppend EventType = "append"
	EventUpdate EventType = "update"
	EventReset  EventType = "reset"
	EventStatus EventType = "status"
)

// Event is a change to a Manager's state. Message is set for append and update events.
type Event struct {
	Type       EventType
	Message    Message
	Submitting bool
	ResponseOK bool
}

// Renderer displays a Manager's state changes. Render is called with the Manager's state lock
// held, in the order the changes happened, and must not call back into the Manager.
type Renderer interface {
	Render(Event)
}

// RendererFunc adapts a function to a Renderer
type RendererFunc func(Event)

// Render calls f(e)
func (f RendererFunc) Render(e Event) {
	f(e)
}

// SettingsSource provides the Settings used to build requests
type SettingsSource interface {
	Settings() api.Settings
}

// Manager owns one conversation: its identity, the displayed messages, and the message history
// exchanged with the endpoint.
type Manager struct {
	sessionID      string
	conversationID string

	client   Client
	settings SettingsSource
	typer    *Typewriter
	renderer Renderer
	logger   *zap.Logger
	ids      *idSource

	mu         sync.Mutex
	messages   []Message
	history    []json.RawMessage
	submitting bool
	responseOK bool
	generation uint64
	stopTyping context.CancelFunc
	closed     bool

	// one request on the wire at a time
	inflight chan struct{}
	// closed when the last started animation finishes; each animation waits for the one before it
	turn chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new Manager with a new session and conversation identity.
// renderer and logger may be nil.
func NewManager(client Client, settings SettingsSource, typer *Typewriter, renderer Renderer, logger *zap.Logger) *Manager {
	if renderer == nil {
		renderer = RendererFunc(func(Event) {})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if typer == nil {
		typer = NewTypewriter(DefaultTypingDelay)
	}

	ctx, cancel := context.WithCancel(context.Background())

	turn := make(chan struct{})
	close(turn)

	m := &Manager{
		sessionID:      "s-" + uuid.NewString(),
		conversationID: "conv-" + uuid.NewString(),
		client:         client,
		settings:       settings,
		typer:          typer,
		renderer:       renderer,
		ids:            newIDSource(),
		messages:       []Message{},
		history:        []json.RawMessage{},
		inflight:       make(chan struct{}, 1),
		turn:           turn,
		ctx:            ctx,
		cancel:         cancel,
	}
	m.logger = logger.With(
		zap.String("session_id", m.sessionID),
		zap.String("conversation_id", m.conversationID),
	)

	return m
}

// SessionID returns the session id
func (m *Manager) SessionID() string {
	return m.sessionID
}

// ConversationID returns the conversation id
func (m *Manager) ConversationID() string {
	return m.conversationID
}

// Messages returns a copy of the displayed messages
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]Message, len(m.messages))
	copy(msgs, m.messages)
	return msgs
}

// MessageHistory returns a copy of the history last returned by the endpoint
func (m *Manager) MessageHistory() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := make([]json.RawMessage, len(m.history))
	copy(h, m.history)
	return h
}

// IsSubmitting returns true while a request is on the wire
func (m *Manager) IsSubmitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitting
}

// IsLastResponseOK returns true if the last request succeeded
func (m *Manager) IsLastResponseOK() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responseOK
}

// Submit appends text as a user message, asks the endpoint and starts typing the reply.
// It returns after the request completes; the typing effect continues in the background (see Wait).
// Whitespace-only text is ignored and false is returned. Concurrent calls are queued.
// Request failures never escape: they are logged and typed as FallbackText.
func (m *Manager) Submit(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" || m.ctx.Err() != nil {
		return false
	}

	m.mu.Lock()
	msg := Message{ID: m.ids.next(), Text: text, Sender: SenderUser}
	m.messages = append(m.messages, msg)
	m.renderer.Render(Event{Type: EventAppend, Message: msg})
	m.mu.Unlock()

	content := m.fetch(ctx, text)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return true
	}
	prev, next := m.turn, make(chan struct{})
	m.turn = next
	m.wg.Add(1)
	m.mu.Unlock()

	go m.animate(content, prev, next)

	return true
}

func (m *Manager) fetch(ctx context.Context, question string) string {
	select {
	case m.inflight <- struct{}{}:
	case <-ctx.Done():
		// another request is still on the wire, so submitting is left alone
		m.logger.Error("Chat request abandoned while queued", zap.Error(ctx.Err()))
		m.mu.Lock()
		m.responseOK = false
		m.renderStatus()
		m.mu.Unlock()
		return FallbackText
	}
	defer func() { <-m.inflight }()

	m.mu.Lock()
	m.submitting = true
	req := m.buildRequest(question)
	m.renderStatus()
	m.mu.Unlock()

	resp, err := m.client.Ask(ctx, req)
	if err != nil {
		m.fail(err)
		return FallbackText
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitting = false
	m.responseOK = true
	m.history = resp.MessageHistory
	if m.history == nil {
		m.history = []json.RawMessage{}
	}
	m.renderStatus()

	return resp.Content
}

func (m *Manager) fail(err error) {
	m.logger.Error("Chat request failed", zap.Error(err))

	m.mu.Lock()
	m.submitting = false
	m.responseOK = false
	m.renderStatus()
	m.mu.Unlock()
}

// buildRequest must be called with mu held
func (m *Manager) buildRequest(question string) *Request {
	s := m.settings.Settings()

	history := make([]json.RawMessage, len(m.history))
	copy(history, m.history)

	return &Request{
		SessionID:         m.sessionID,
		ConversationID:    m.conversationID,
		Question:          question,
		LLMType:           s.SelectedLLM,
		Temperature:       s.Temperature,
		NumberOfDocuments: s.NumberOfDocuments(),
		MessageHistory:    history,
	}
}

// renderStatus must be called with mu held
func (m *Manager) renderStatus() {
	m.renderer.Render(Event{Type: EventStatus, Submitting: m.submitting, ResponseOK: m.responseOK})
}

// animate types content into a new bot message once prev is closed, then closes done.
// It stops early if the Manager is reset or closed.
func (m *Manager) animate(content string, prev <-chan struct{}, done chan<- struct{}) {
	defer m.wg.Done()
	defer close(done)

	select {
	case <-prev:
	case <-m.ctx.Done():
		return
	}
	if m.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	m.mu.Lock()
	gen := m.generation
	m.stopTyping = cancel
	m.mu.Unlock()

	var id int64
	first := true

	for frame := range m.typer.Type(ctx, content) {
		m.mu.Lock()
		if m.generation != gen || m.closed {
			m.mu.Unlock()
			return
		}

		if first {
			first = false
			id = m.ids.next()
			msg := Message{ID: id, Text: frame.Text, Sender: SenderBot, IsTyping: !frame.Done}
			m.messages = append(m.messages, msg)
			m.renderer.Render(Event{Type: EventAppend, Message: msg})
		} else if msg, ok := m.update(id, frame); ok {
			m.renderer.Render(Event{Type: EventUpdate, Message: msg})
		}

		m.mu.Unlock()
	}
}

// update must be called with mu held
func (m *Manager) update(id int64, frame Frame) (Message, bool) {
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages[i].Text = frame.Text
			m.messages[i].IsTyping = !frame.Done
			return m.messages[i], true
		}
	}
	return Message{}, false
}

// Reset clears the messages and history and stops any typing. The session and conversation ids
// are kept.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = []Message{}
	m.history = []json.RawMessage{}
	m.submitting = false
	m.generation++
	if m.stopTyping != nil {
		m.stopTyping()
		m.stopTyping = nil
	}

	m.renderer.Render(Event{Type: EventReset, Submitting: m.submitting, ResponseOK: m.responseOK})
}

// Rate sends a Good or Bad rating for the last reply in the message history
func (m *Manager) Rate(ctx context.Context, value, comment string) error {
	if err := api.ValidateOneOf("value", value, RatingValues); err != nil {
		return &api.Error{Description: "Could not validate rating", Type: api.ErrorTypeUser, Err: err}
	}
	if comment != "" {
		if err := api.ValidateString("message", comment, MaxRatingComment); err != nil {
			return &api.Error{Description: "Could not validate rating", Type: api.ErrorTypeUser, Err: err}
		}
	}

	m.mu.Lock()
	id, ok := lastReplyID(m.history)
	m.mu.Unlock()

	if !ok {
		return &api.Error{Description: "Could not find a reply to rate", Type: api.ErrorTypeUser, Err: errors.New("message history has no reply")}
	}

	err := m.client.Rate(ctx, &RatingRequest{
		SessionID:      m.sessionID,
		ConversationID: m.conversationID,
		MessageID:      id,
		Value:          value,
		Message:        comment,
	})
	if err != nil {
		m.logger.Error("Rating failed", zap.String("message_id", id), zap.Error(err))
		return &api.Error{Description: "Could not send rating", Type: api.ErrorTypeServer, Err: err}
	}

	return nil
}

// lastReplyID returns the last history entry that is a reply id (a string starting with llm-)
func lastReplyID(history []json.RawMessage) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		var id string
		if err := json.Unmarshal(history[i], &id); err != nil {
			continue
		}
		if strings.HasPrefix(id, "llm-") {
			return id, true
		}
	}
	return "", false
}

// Wait blocks until all started typing effects have finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops any typing and waits for it to exit. Submit does nothing after Close.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

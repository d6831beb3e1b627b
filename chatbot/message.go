package chatbot

import (
	"sync"
	"time"
)

// FallbackText is shown in place of a reply when the endpoint can't be reached or answers badly
const FallbackText = "Sorry, something went wrong."

// Sender is the author of a Message
type Sender string

// Senders
const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one unit of displayed chat content
type Message struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Sender   Sender `json:"sender"`
	IsTyping bool   `json:"is_typing"`
}

// idSource hands out millisecond timestamps, bumped when needed so ids are strictly increasing
type idSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newIDSource() *idSource {
	return &idSource{now: time.Now}
}

func (s *idSource) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

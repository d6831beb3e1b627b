package chatbot

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// SubmitQueue is how many submits a connection may have waiting. Further submits are rejected.
const SubmitQueue = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler handles WebSocket chat connections. Each connection is one page with its own Manager.
type Handler struct {
	client      Client
	settings    SettingsSource
	typingDelay time.Duration
	logger      *zap.Logger
}

// NewHandler creates a new chat handler
func NewHandler(client Client, settings SettingsSource, typingDelay time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		client:      client,
		settings:    settings,
		typingDelay: typingDelay,
		logger:      logger,
	}
}

// connRenderer writes Manager events to a connection
type connRenderer struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zap.Logger
}

func (c *connRenderer) Render(e Event) {
	c.write(NewServerMessage(e))
}

func (c *connRenderer) write(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("Failed to write message", zap.String("type", msg.Type), zap.Error(err))
	}
}

// ServeHTTP handles the WebSocket upgrade and chat flow
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := &connRenderer{conn: conn, logger: h.logger}
	m := NewManager(h.client, h.settings, NewTypewriter(h.typingDelay), out, h.logger)
	log := h.logger.With(zap.String("session_id", m.SessionID()))
	log.Info("Chat connected")

	ctx, cancel := context.WithCancel(context.Background())
	submits := make(chan string, SubmitQueue)

	var wg sync.WaitGroup
	defer func() {
		close(submits)
		cancel()
		wg.Wait()
		m.Close()
		log.Info("Chat disconnected")
	}()

	// submits run one at a time in arrival order
	wg.Add(1)
	go func() {
		defer wg.Done()
		for text := range submits {
			if ctx.Err() != nil {
				continue
			}
			m.Submit(ctx, text)
		}
	}()

	out.write(ServerMessage{
		Type:           MessageTypeSession,
		SessionID:      m.SessionID(),
		ConversationID: m.ConversationID(),
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Failed to read message", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case ClientMessageSubmit:
			select {
			case submits <- msg.Message:
			default:
				out.write(ServerMessage{Type: MessageTypeError, Error: "Too many pending messages"})
			}
		case ClientMessageReset:
			m.Reset()
		case ClientMessageRate:
			wg.Add(1)
			go func(value, comment string) {
				defer wg.Done()
				if err := m.Rate(ctx, value, comment); err != nil {
					out.write(ServerMessage{Type: MessageTypeError, Error: err.Error()})
					return
				}
				out.write(ServerMessage{Type: MessageTypeRated})
			}(msg.Value, msg.Message)
		default:
			out.write(ServerMessage{Type: MessageTypeError, Error: "Unknown message type: " + msg.Type})
		}
	}
}

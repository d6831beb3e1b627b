package chatbot

// ClientMessage is the message format from client to server
type ClientMessage struct {
	Type    string `json:"type"`              // "submit", "reset", or "rate"
	Message string `json:"message,omitempty"` // question for "submit", comment for "rate"
	Value   string `json:"value,omitempty"`   // "Good" or "Bad" for "rate"
}

// ServerMessage is the message format from server to client
type ServerMessage struct {
	Type           string   `json:"type"`
	Message        *Message `json:"message,omitempty"`         // sent with "append" and "update"
	IsSubmitting   bool     `json:"is_submitting"`             // sent with "status" and "reset"
	IsResponseOK   bool     `json:"is_response_ok"`            // sent with "status" and "reset"
	SessionID      string   `json:"session_id,omitempty"`      // sent with "session"
	ConversationID string   `json:"conversation_id,omitempty"` // sent with "session"
	Error          string   `json:"error,omitempty"`           // sent with "error"
}

// Client message types
const (
	ClientMessageSubmit = "submit"
	ClientMessageReset  = "reset"
	ClientMessageRate   = "rate"
)

// Server message types
const (
	MessageTypeSession = "session"
	MessageTypeAppend  = "append"
	MessageTypeUpdate  = "update"
	MessageTypeReset   = "reset"
	MessageTypeStatus  = "status"
	MessageTypeRated   = "rated"
	MessageTypeError   = "error"
)

// NewServerMessage converts a Manager Event to its wire format
func NewServerMessage(e Event) ServerMessage {
	msg := ServerMessage{
		Type:         string(e.Type),
		IsSubmitting: e.Submitting,
		IsResponseOK: e.ResponseOK,
	}
	if e.Type == EventAppend || e.Type == EventUpdate {
		m := e.Message
		msg.Message = &m
	}
	return msg
}

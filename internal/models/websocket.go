package models

// ClientMessage is a message received from the chat frontend over WebSocket.
type ClientMessage struct {
	Type      string `json:"type"`       // "chat_message", "new_session", "get_session_info", "ping"
	SessionID string `json:"session_id"` // empty on the first message of a fresh client
	Content   string `json:"content"`
}

// ServerMessage is a message sent to the chat frontend over WebSocket.
type ServerMessage struct {
	Type         string           `json:"type"` // "connected", "typing", "chat_response", "new_session", "session_info", "pong", "error"
	SessionID    string           `json:"session_id,omitempty"`
	Content      string           `json:"content,omitempty"`
	Typing       bool             `json:"typing,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	MessageCount int              `json:"message_count,omitempty"`
	History      []Message        `json:"history,omitempty"`
	Products     []ProductMention `json:"products,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

package models

// Message is a single turn in a session's conversation history.
// Messages are immutable once appended.
type Message struct {
	Timestamp string `json:"timestamp"` // ISO-8601
	Sender    string `json:"sender"`    // "user" or "assistant"
	Content   string `json:"content"`
}

// Sender role values
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// ProductMention records a product discussed in a session.
type ProductMention struct {
	Name      string            `json:"name"`
	Timestamp string            `json:"timestamp"`
	Details   map[string]string `json:"details"`
}

// SessionMetadata mirrors the counters stored alongside the document.
type SessionMetadata struct {
	MessageCount int `json:"message_count"`
	ProductCount int `json:"product_count"`
}

// SessionDocument is the persisted JSON shape of one session. The document is
// authoritative for message/product content; the relational row only mirrors
// listing metadata and can always be rebuilt from it.
type SessionDocument struct {
	SessionID    string           `json:"session_id"`
	CreatedAt    string           `json:"created_at"`
	LastActivity string           `json:"last_activity"`
	History      []Message        `json:"history"`
	Products     []ProductMention `json:"products"`
	Metadata     SessionMetadata  `json:"metadata"`
}

// SessionInfo is the relational row for a session, used for fast listing.
type SessionInfo struct {
	SessionID    string `json:"session_id"`
	SessionName  string `json:"session_name"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	MessageCount int    `json:"message_count"`
	ProductCount int    `json:"product_count"`
	Metadata     string `json:"metadata"`
	IsActive     bool   `json:"is_active"`
}

// SessionDetail is the full admin view of a session: row metadata plus the
// document's content.
type SessionDetail struct {
	SessionInfo
	History  []Message        `json:"history"`
	Products []ProductMention `json:"products"`
}

package store

import "time"

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

// Session is one "chat with a database" conversation. The live connection
// and the attempt log are held in memory by the session registry; this row
// keeps the transcript and connection metadata.
type Session struct {
	ID        string    `json:"id"` // Using UUID for external ID
	UserID    int64     `json:"user_id"`
	Title     *string   `json:"title"` // Nullable, generated after the first exchange
	Driver    string    `json:"driver"`
	Database  string    `json:"database"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID               string    `json:"id"` // Using UUID for external ID
	SessionID        string    `json:"session_id"`
	Sender           string    `json:"sender"` // "user" or "assistant"
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	NegativeFeedback bool      `json:"negative_feedback"`
}

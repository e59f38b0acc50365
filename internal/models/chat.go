package models

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tier is the response strategy chosen from the best retrieval score.
type Tier string

const (
	TierGrounded      Tier = "grounded"
	TierLowConfidence Tier = "low_confidence"
	TierEscalate      Tier = "escalate"
	TierError         Tier = "error"
)

// ChatRequest is an incoming customer question.
type ChatRequest struct {
	Message   string `json:"message"`
	TenantID  int64  `json:"tenant_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Source is a knowledge item that backed an answer.
type Source struct {
	ID       int64   `json:"id"`
	Type     string  `json:"type"`
	Question string  `json:"question"`
	Score    float64 `json:"score"`
}

// Suggestion is a related question the customer can ask next.
type Suggestion struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Answer is the engine's reply to a ChatRequest. It is always populated, even on failure.
type Answer struct {
	Text        string       `json:"text"`
	Sources     []Source     `json:"sources"`
	Escalate    bool         `json:"escalate"`
	Suggestions []Suggestion `json:"suggestions"`
	SessionID   string       `json:"session_id"`
	Tier        Tier         `json:"tier"`
	TopScore    float64      `json:"top_score"`
}

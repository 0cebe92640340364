package chat

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted transcript entry.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Metadata is attached to assistant messages only.
type Metadata struct {
	Analysis Analysis `json:"analysis"`
	Progress Progress `json:"progress"`
}

// Progress is the snapshot of the analysis kept alongside each reply.
type Progress struct {
	EmotionalState string  `json:"emotionalState"`
	RiskLevel      float64 `json:"riskLevel"`
}

// NewAssistantMetadata derives reply metadata from the analysis of the user message it answers.
func NewAssistantMetadata(analysis Analysis) *Metadata {
	snapshot := analysis.Clone()
	return &Metadata{
		Analysis: snapshot,
		Progress: snapshot.Progress(),
	}
}

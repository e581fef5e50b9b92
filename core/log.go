package core

import "time"

// Actor identifies who produced a conversation log entry.
type Actor string

const (
	ActorUser  Actor = "user"
	ActorAgent Actor = "agent"
)

// ConversationLogEntry is one append-only row of the per-user conversation
// audit log. StateAtTime captures the phase the user was in when the entry
// was produced, which makes the log replayable.
type ConversationLogEntry struct {
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       Actor     `json:"actor"`
	AgentName   string    `json:"agent_name,omitempty"`
	Payload     string    `json:"payload"`
	StateAtTime Phase     `json:"state_at_time"`
}

// UserEntry builds a log entry for an inbound user message.
func UserEntry(userID, message string, at Phase) ConversationLogEntry {
	return ConversationLogEntry{
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		Actor:       ActorUser,
		Payload:     message,
		StateAtTime: at,
	}
}

// AgentEntry builds a log entry for a produced response. agentName may be
// empty when the response was template-generated without an agent call.
func AgentEntry(userID, agentName, payload string, at Phase) ConversationLogEntry {
	return ConversationLogEntry{
		UserID:      userID,
		Timestamp:   time.Now().UTC(),
		Actor:       ActorAgent,
		AgentName:   agentName,
		Payload:     payload,
		StateAtTime: at,
	}
}

package memory

import (
	"fmt"
	"strings"
)

// Message is one chat line as persisted by the message store.
type Message struct {
	Sender    string
	Text      string
	Timestamp int64
}

// Key is the stable identity of a message across retrieval backends.
func (m Message) Key() string {
	return fmt.Sprintf("%d:%s:%s", m.Timestamp, m.Sender, m.Text)
}

// Session lifecycle states. The status column write is the commit point:
// a session is never observable as both open and summarized.
const (
	SessionOpen       = "open"
	SessionClosed     = "closed"
	SessionSummarized = "summarized"
	SessionFailed     = "failed"
)

// Session is a time-bounded cluster of one chat's messages.
type Session struct {
	ID             string
	ChatID         string
	StartedAt      int64
	EndedAt        int64
	MessageCount   int
	Participants   []string
	Status         string
	SummaryText    string
	TopicTags      []string
	SummaryVersion int
}

// HasParticipant reports whether sender is already recorded on the session.
func (s *Session) HasParticipant(sender string) bool {
	for _, p := range s.Participants {
		if p == sender {
			return true
		}
	}
	return false
}

// SessionSummaryHit is a scored session-summary retrieval result.
type SessionSummaryHit struct {
	SessionID    string
	StartedAt    int64
	EndedAt      int64
	MessageCount int
	Participants []string
	TopicTags    []string
	SummaryText  string
	Score        float64
}

// CandidateSource tags where a ranked candidate came from so the
// assembler can format each kind differently.
type CandidateSource string

const (
	SourceMessage CandidateSource = "message"
	SourceSession CandidateSource = "session"
)

// RankedCandidate is the reranker's output item. Ephemeral, never persisted.
type RankedCandidate struct {
	Source         CandidateSource
	Text           string
	Attribution    string
	Score          float64
	RecencySeconds int64
	Message        *Message
	Session        *SessionSummaryHit
}

// MessageStore is the durable per-chat message log this engine consumes.
// Recent returns newest-first; callers reverse for chronological rendering.
type MessageStore interface {
	Append(chatID, sender, text string, timestamp int64) error
	Recent(chatID string, limit int) ([]Message, error)
	Between(chatID string, from, to int64) ([]Message, error)
	SearchByKeyword(chatID, pattern string, limit int) ([]Message, error)
}

// VectorSearcher is an optional message-store capability. When the store
// implements it the retriever embeds queries and searches by similarity.
type VectorSearcher interface {
	SearchByVector(chatID string, vector []float32, limit int) ([]Message, error)
}

// SessionStore persists Session rows. At most one open session exists per
// chat; implementations back this with their own atomicity (e.g. a partial
// unique index).
type SessionStore interface {
	OpenSession(chatID string) (*Session, error)
	CreateSession(s *Session) error
	ExtendSession(id string, endedAt int64, messageCount int, participants []string) error
	FinishSession(id, status, summaryText string, topicTags []string, summaryVersion int) error
	OpenSessionsIdleSince(cutoff int64) ([]Session, error)
	RecentSummarized(chatID string, limit int) ([]Session, error)
}

func normalizeChatID(chatID string) string {
	return strings.TrimSpace(chatID)
}

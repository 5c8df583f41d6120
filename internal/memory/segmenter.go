package memory

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Segmenter groups a chat's message stream into gap-bounded sessions.
// Calls for different chats run concurrently; calls for the same chat
// serialize on a per-chat lock so at most one open session exists per chat.
type Segmenter struct {
	sessions SessionStore
	messages MessageStore

	gap            time.Duration
	minMessages    int
	summaryVersion int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSegmenter(sessions SessionStore, messages MessageStore, gap time.Duration, minMessages, summaryVersion int) *Segmenter {
	if gap <= 0 {
		gap = 20 * time.Minute
	}
	if minMessages <= 0 {
		minMessages = 1
	}
	if summaryVersion <= 0 {
		summaryVersion = 1
	}
	return &Segmenter{
		sessions:       sessions,
		messages:       messages,
		gap:            gap,
		minMessages:    minMessages,
		summaryVersion: summaryVersion,
		locks:          make(map[string]*sync.Mutex),
	}
}

func (s *Segmenter) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[chatID] = lock
	}
	return lock
}

// OnMessage records one inbound message against the chat's open session,
// opening a new session first when the gap window has elapsed. A failed
// summary on the stale session never blocks the new one from opening.
func (s *Segmenter) OnMessage(chatID, sender string, timestamp int64) error {
	chatID = normalizeChatID(chatID)
	if chatID == "" {
		return fmt.Errorf("segmenter: empty chat id")
	}

	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	open, err := s.sessions.OpenSession(chatID)
	if err != nil {
		return fmt.Errorf("segmenter: load open session: %w", err)
	}

	if open == nil {
		return s.openSession(chatID, sender, timestamp)
	}

	if timestamp-open.EndedAt <= int64(s.gap.Seconds()) {
		count := open.MessageCount + 1
		participants := open.Participants
		if !open.HasParticipant(sender) {
			participants = append(append([]string(nil), participants...), sender)
		}
		endedAt := open.EndedAt
		if timestamp > endedAt {
			endedAt = timestamp
		}
		if err := s.sessions.ExtendSession(open.ID, endedAt, count, participants); err != nil {
			return fmt.Errorf("segmenter: extend session: %w", err)
		}
		return nil
	}

	// Stale session: finalize it, then open the new one regardless.
	if err := s.finalize(open); err != nil {
		log.Printf("[segmenter] finalize session %s failed: %v", open.ID, err)
	}
	return s.openSession(chatID, sender, timestamp)
}

func (s *Segmenter) openSession(chatID, sender string, timestamp int64) error {
	session := &Session{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		StartedAt:    timestamp,
		EndedAt:      timestamp,
		MessageCount: 1,
		Participants: []string{sender},
		Status:       SessionOpen,
	}
	if err := s.sessions.CreateSession(session); err != nil {
		return fmt.Errorf("segmenter: create session: %w", err)
	}
	return nil
}

// finalize transitions an open session to summarized, closed (below the
// message threshold) or failed. The status write is the commit point.
func (s *Segmenter) finalize(session *Session) error {
	if session.MessageCount < s.minMessages {
		if err := s.sessions.FinishSession(session.ID, SessionClosed, "", nil, 0); err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		return nil
	}

	messages, err := s.messages.Between(session.ChatID, session.StartedAt, session.EndedAt)
	if err != nil {
		if ferr := s.sessions.FinishSession(session.ID, SessionFailed, "", nil, 0); ferr != nil {
			return fmt.Errorf("mark failed after load error: %v: %w", err, ferr)
		}
		return fmt.Errorf("load session messages: %w", err)
	}

	summary := Summarize(messages, session.Participants)
	if summary.Text == "" {
		if err := s.sessions.FinishSession(session.ID, SessionClosed, "", nil, 0); err != nil {
			return fmt.Errorf("close empty-summary session: %w", err)
		}
		return nil
	}

	if err := s.sessions.FinishSession(session.ID, SessionSummarized, summary.Text, summary.TopicTags, s.summaryVersion); err != nil {
		return fmt.Errorf("commit summary: %w", err)
	}
	return nil
}

// SweepIdle finalizes open sessions whose gap window elapsed without a
// follow-up message. Optional: the lazy next-message trigger alone is a
// correct implementation, a permanently idle chat just stays open.
func (s *Segmenter) SweepIdle(now time.Time) (int, error) {
	cutoff := now.Add(-s.gap).Unix()
	idle, err := s.sessions.OpenSessionsIdleSince(cutoff)
	if err != nil {
		return 0, fmt.Errorf("segmenter: list idle sessions: %w", err)
	}

	swept := 0
	for i := range idle {
		session := idle[i]
		lock := s.chatLock(session.ChatID)
		lock.Lock()
		// Re-check under the lock: a message may have extended it.
		current, err := s.sessions.OpenSession(session.ChatID)
		if err != nil || current == nil || current.ID != session.ID || current.EndedAt > cutoff {
			lock.Unlock()
			continue
		}
		if err := s.finalize(current); err != nil {
			log.Printf("[segmenter] sweep finalize session %s failed: %v", current.ID, err)
		} else {
			swept++
		}
		lock.Unlock()
	}
	return swept, nil
}

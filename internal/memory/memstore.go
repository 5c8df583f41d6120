package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory MessageStore + SessionStore used by the
// evaluation harness and tests. It implements VectorSearcher with the
// deterministic embedding so the vector path is exercised without
// credentials or a database.
type MemStore struct {
	mu        sync.RWMutex
	messages  map[string][]Message
	sessions  []Session
	vectorDim int
}

func NewMemStore(vectorDim int) *MemStore {
	if vectorDim <= 0 {
		vectorDim = 64
	}
	return &MemStore{
		messages:  make(map[string][]Message),
		vectorDim: vectorDim,
	}
}

func (s *MemStore) Append(chatID, sender, text string, timestamp int64) error {
	chatID = normalizeChatID(chatID)
	if chatID == "" {
		return fmt.Errorf("memstore: empty chat id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatID] = append(s.messages[chatID], Message{Sender: sender, Text: text, Timestamp: timestamp})
	sort.SliceStable(s.messages[chatID], func(i, j int) bool {
		return s.messages[chatID][i].Timestamp < s.messages[chatID][j].Timestamp
	})
	return nil
}

// Recent returns newest-first, matching the sqlite store.
func (s *MemStore) Recent(chatID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[normalizeChatID(chatID)]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]Message, 0, limit)
	for i := len(msgs) - 1; i >= len(msgs)-limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (s *MemStore) Between(chatID string, from, to int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0)
	for _, msg := range s.messages[normalizeChatID(chatID)] {
		if msg.Timestamp >= from && msg.Timestamp <= to {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemStore) SearchByKeyword(chatID, pattern string, limit int) ([]Message, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0)
	for _, msg := range s.messages[normalizeChatID(chatID)] {
		if strings.Contains(strings.ToLower(msg.Text), pattern) {
			out = append(out, msg)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) SearchByVector(chatID string, vector []float32, limit int) ([]Message, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scoredMessage struct {
		msg   Message
		score float64
	}
	scored := make([]scoredMessage, 0)
	for _, msg := range s.messages[normalizeChatID(chatID)] {
		candidate := DeterministicEmbedding(msg.Text, len(vector))
		score, err := CosineSimilarity(vector, candidate)
		if err != nil || score <= 0 {
			continue
		}
		scored = append(scored, scoredMessage{msg: msg, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]Message, 0, len(scored))
	for _, item := range scored {
		out = append(out, item.msg)
	}
	return out, nil
}

func (s *MemStore) OpenSession(chatID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.sessions {
		if s.sessions[i].ChatID == chatID && s.sessions[i].Status == SessionOpen {
			copied := s.sessions[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemStore) CreateSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ChatID == session.ChatID && s.sessions[i].Status == SessionOpen {
			return fmt.Errorf("memstore: open session already exists for chat %s", session.ChatID)
		}
	}
	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *MemStore) ExtendSession(id string, endedAt int64, messageCount int, participants []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].EndedAt = endedAt
			s.sessions[i].MessageCount = messageCount
			s.sessions[i].Participants = append([]string(nil), participants...)
			return nil
		}
	}
	return fmt.Errorf("memstore: session %s not found", id)
}

func (s *MemStore) FinishSession(id, status, summaryText string, topicTags []string, summaryVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Status = status
			s.sessions[i].SummaryText = summaryText
			s.sessions[i].TopicTags = append([]string(nil), topicTags...)
			s.sessions[i].SummaryVersion = summaryVersion
			return nil
		}
	}
	return fmt.Errorf("memstore: session %s not found", id)
}

func (s *MemStore) OpenSessionsIdleSince(cutoff int64) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0)
	for i := range s.sessions {
		if s.sessions[i].Status == SessionOpen && s.sessions[i].EndedAt <= cutoff {
			out = append(out, s.sessions[i])
		}
	}
	return out, nil
}

func (s *MemStore) RecentSummarized(chatID string, limit int) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0)
	for i := range s.sessions {
		if s.sessions[i].ChatID == chatID && s.sessions[i].Status == SessionSummarized {
			out = append(out, s.sessions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt > out[j].EndedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddSession seeds a session row directly; used by fixtures.
func (s *MemStore) AddSession(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
}

// Sessions returns a snapshot of all session rows.
func (s *MemStore) Sessions() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

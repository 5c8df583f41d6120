package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/memory"
)

// OpenSession returns the chat's single open session, or nil.
func (s *Store) OpenSession(chatID string) (*memory.Session, error) {
	row := s.db.QueryRow(sessionSelect+`
		WHERE chat_id = ? AND status = 'open'
	`, strings.TrimSpace(chatID))

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return session, nil
}

func (s *Store) CreateSession(session *memory.Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("create session: missing id")
	}

	participants, err := json.Marshal(session.Participants)
	if err != nil {
		return fmt.Errorf("create session: marshal participants: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		INSERT INTO sessions (id, chat_id, started_at, ended_at, message_count, participants, status)
		VALUES (?, ?, ?, ?, ?, ?, 'open')
	`, session.ID, strings.TrimSpace(session.ChatID), session.StartedAt, session.EndedAt,
		session.MessageCount, string(participants)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) ExtendSession(id string, endedAt int64, messageCount int, participants []string) error {
	encoded, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("extend session: marshal participants: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE sessions
		SET ended_at = ?, message_count = ?, participants = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'open'
	`, endedAt, messageCount, string(encoded), id)
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("extend session: no open session with id %s", id)
	}
	return nil
}

// FinishSession is the commit point for the open -> closed/summarized/failed
// transition; it refuses to touch a session that already left open status.
func (s *Store) FinishSession(id, status, summaryText string, topicTags []string, summaryVersion int) error {
	switch status {
	case memory.SessionClosed, memory.SessionSummarized, memory.SessionFailed:
	default:
		return fmt.Errorf("finish session: invalid status %q", status)
	}

	tags, err := json.Marshal(topicTags)
	if err != nil {
		return fmt.Errorf("finish session: marshal tags: %w", err)
	}

	var summary any
	if strings.TrimSpace(summaryText) != "" {
		summary = summaryText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE sessions
		SET status = ?, summary_text = ?, topic_tags = ?, summary_version = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'open'
	`, status, summary, string(tags), summaryVersion, id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("finish session: no open session with id %s", id)
	}
	return nil
}

func (s *Store) OpenSessionsIdleSince(cutoff int64) ([]memory.Session, error) {
	rows, err := s.db.Query(sessionSelect+`
		WHERE status = 'open' AND ended_at <= ?
		ORDER BY ended_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("idle sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// RecentSummarized returns the chat's latest summarized sessions,
// newest-first, for the retriever.
func (s *Store) RecentSummarized(chatID string, limit int) ([]memory.Session, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.Query(sessionSelect+`
		WHERE chat_id = ? AND status = 'summarized' AND summary_text IS NOT NULL
		ORDER BY ended_at DESC
		LIMIT ?
	`, strings.TrimSpace(chatID), limit)
	if err != nil {
		return nil, fmt.Errorf("recent summarized: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SessionCounts reports session totals by status for status reporting.
func (s *Store) SessionCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan session count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session counts: %w", err)
	}
	return counts, nil
}

const sessionSelect = `
	SELECT id, chat_id, started_at, ended_at, message_count, participants,
	       status, summary_text, topic_tags, summary_version
	FROM sessions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*memory.Session, error) {
	var session memory.Session
	var participants, tags string
	var summary sql.NullString
	if err := row.Scan(
		&session.ID,
		&session.ChatID,
		&session.StartedAt,
		&session.EndedAt,
		&session.MessageCount,
		&participants,
		&session.Status,
		&summary,
		&tags,
		&session.SummaryVersion,
	); err != nil {
		return nil, err
	}
	session.SummaryText = summary.String

	if err := json.Unmarshal([]byte(participants), &session.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &session.TopicTags); err != nil {
		return nil, fmt.Errorf("decode topic tags: %w", err)
	}
	return &session, nil
}

func scanSessions(rows *sql.Rows) ([]memory.Session, error) {
	result := make([]memory.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		result = append(result, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return result, nil
}

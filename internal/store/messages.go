package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/memory"
)

// Append writes one message, truncating oversized text and pruning the
// chat FIFO beyond the per-chat cap. Retention is this store's job, not
// the engine's.
func (s *Store) Append(chatID, sender, text string, timestamp int64) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return fmt.Errorf("append: empty chat id")
	}
	text = truncateRunesafe(text, s.maxMessageChars)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		INSERT INTO messages (chat_id, sender, text, ts)
		VALUES (?, ?, ?, ?)
	`, chatID, strings.TrimSpace(sender), text, timestamp); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	return s.pruneLocked(chatID)
}

func (s *Store) pruneLocked(chatID string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&count); err != nil {
		return fmt.Errorf("prune count: %w", err)
	}
	if count <= s.maxMessagesPerChat {
		return nil
	}

	if _, err := s.db.Exec(`
		DELETE FROM messages
		WHERE chat_id = ? AND id IN (
			SELECT id FROM messages WHERE chat_id = ?
			ORDER BY ts ASC, id ASC
			LIMIT ?
		)
	`, chatID, chatID, count-s.maxMessagesPerChat); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}

// Recent returns up to limit messages, newest-first.
func (s *Store) Recent(chatID string, limit int) ([]memory.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT sender, text, ts FROM messages
		WHERE chat_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, strings.TrimSpace(chatID), limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Between returns messages with from <= ts <= to, oldest-first.
func (s *Store) Between(chatID string, from, to int64) ([]memory.Message, error) {
	rows, err := s.db.Query(`
		SELECT sender, text, ts FROM messages
		WHERE chat_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, strings.TrimSpace(chatID), from, to)
	if err != nil {
		return nil, fmt.Errorf("messages between: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchByKeyword runs a case-insensitive LIKE match, newest-first.
func (s *Store) SearchByKeyword(chatID, pattern string, limit int) ([]memory.Message, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT sender, text, ts FROM messages
		WHERE chat_id = ? AND text LIKE ? ESCAPE '\'
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, strings.TrimSpace(chatID), "%"+escapeLike(pattern)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchByVector brute-forces cosine similarity over the chat's embedded
// messages. Rows without a backfilled embedding are invisible to it; the
// retriever falls back to keyword search when nothing matches.
func (s *Store) SearchByVector(chatID string, vector []float32, limit int) ([]memory.Message, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT sender, text, ts, embedding FROM messages
		WHERE chat_id = ? AND embedding IS NOT NULL AND embedding_dim = ?
	`, strings.TrimSpace(chatID), len(vector))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	type scoredMessage struct {
		msg   memory.Message
		score float64
	}
	scored := make([]scoredMessage, 0)
	for rows.Next() {
		var msg memory.Message
		var blob []byte
		if err := rows.Scan(&msg.Sender, &msg.Text, &msg.Timestamp, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		candidate, err := memory.DecodeVector(blob)
		if err != nil {
			continue
		}
		score, err := memory.CosineSimilarity(vector, candidate)
		if err != nil || score <= 0 {
			continue
		}
		scored = append(scored, scoredMessage{msg: msg, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector rows: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]memory.Message, 0, len(scored))
	for _, item := range scored {
		out = append(out, item.msg)
	}
	return out, nil
}

// MessageCount reports the number of stored messages for a chat.
func (s *Store) MessageCount(chatID string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, strings.TrimSpace(chatID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("message count: %w", err)
	}
	return count, nil
}

func scanMessages(rows *sql.Rows) ([]memory.Message, error) {
	result := make([]memory.Message, 0)
	for rows.Next() {
		var msg memory.Message
		if err := rows.Scan(&msg.Sender, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}

func escapeLike(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(pattern)
}

func truncateRunesafe(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && (text[cut]&0xC0) == 0x80 {
		cut--
	}
	return text[:cut]
}

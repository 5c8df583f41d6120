package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/memory"
)

// BackfillEmbeddings embeds stored messages that have none yet, in
// deterministic id order. It runs off the ingestion path (a background
// job calls it), is idempotent, and returns how many rows it filled.
func (s *Store) BackfillEmbeddings(ctx context.Context, embedder memory.Embedder, batchSize int) (int, error) {
	if embedder == nil {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 64
	}

	rows, err := s.db.Query(`
		SELECT id, text FROM messages
		WHERE embedding IS NULL
		ORDER BY id ASC
		LIMIT ?
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("backfill: query missing embeddings: %w", err)
	}

	type pending struct {
		id   int64
		text string
	}
	batch := make([]pending, 0, batchSize)
	for rows.Next() {
		var item pending
		if err := rows.Scan(&item.id, &item.text); err != nil {
			rows.Close()
			return 0, fmt.Errorf("backfill: scan row: %w", err)
		}
		batch = append(batch, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("backfill: iterate rows: %w", err)
	}
	rows.Close()

	filled := 0
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		if strings.TrimSpace(item.text) == "" {
			continue
		}

		result, err := embedder.Embed(ctx, item.text)
		if err != nil {
			log.Printf("[store] backfill embed id=%d failed: %v", item.id, err)
			continue
		}
		if err := s.updateEmbedding(item.id, result.Model, result.Vector); err != nil {
			log.Printf("[store] backfill persist id=%d failed: %v", item.id, err)
			continue
		}
		filled++
	}
	return filled, nil
}

func (s *Store) updateEmbedding(id int64, model string, vector []float32) error {
	blob, err := memory.EncodeVector(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		UPDATE messages
		SET embedding = ?, embedding_model = ?, embedding_dim = ?
		WHERE id = ?
	`, blob, strings.TrimSpace(model), len(vector), id); err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

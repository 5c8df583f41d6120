package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/config"
)

func testEmbedder() Embedder {
	return NewEmbedder(config.EmbeddingConfig{Provider: "deterministic", Dimension: 64})
}

func seedPizzaChat(t *testing.T, store *MemStore) {
	t.Helper()
	base := time.Date(2024, 4, 2, 18, 0, 0, 0, time.UTC).Unix()
	fixtures := []struct {
		sender string
		text   string
	}{
		{"ana", "morning everyone"},
		{"ben", "Let's plan a pizza party this weekend!"},
		{"cho", "i can bring drinks"},
		{"ana", "saturday works for me"},
		{"ben", "great, pizza saturday it is"},
		{"dee", "unrelated: anyone seen my charger?"},
	}
	for i, f := range fixtures {
		if err := store.Append("chat-1", f.sender, f.text, base+int64(i)*60); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestSearchMessagesFindsPizzaParty(t *testing.T) {
	store := NewMemStore(64)
	seedPizzaChat(t, store)
	retriever := NewRetriever(store, store, testEmbedder(), 3)

	hits, err := retriever.SearchMessages(context.Background(), "chat-1", "pizza party", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits for pizza party query")
	}

	found := false
	for _, hit := range hits {
		if hit.Text == "Let's plan a pizza party this weekend!" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the pizza party message among hits, got %v", hits)
	}
}

func TestSearchMessagesEmptyQuery(t *testing.T) {
	store := NewMemStore(64)
	seedPizzaChat(t, store)
	retriever := NewRetriever(store, store, testEmbedder(), 3)

	for _, query := range []string{"", "   ", "a an it"} {
		hits, err := retriever.SearchMessages(context.Background(), "chat-1", query, 5)
		if err != nil {
			t.Fatalf("search %q: %v", query, err)
		}
		if len(hits) != 0 {
			t.Fatalf("query %q should yield no hits, got %v", query, hits)
		}
	}
}

func TestSearchMessagesRespectsLimit(t *testing.T) {
	store := NewMemStore(64)
	seedPizzaChat(t, store)
	retriever := NewRetriever(store, store, testEmbedder(), 3)

	hits, err := retriever.SearchMessages(context.Background(), "chat-1", "pizza saturday", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) > 1 {
		t.Fatalf("limit 1 violated: %d hits", len(hits))
	}
}

func TestSearchByKeywordDedupsAcrossTokens(t *testing.T) {
	store := NewMemStore(64)
	if err := store.Append("chat-2", "ana", "pizza party planning thread", 100); err != nil {
		t.Fatalf("append: %v", err)
	}
	retriever := NewRetriever(store, store, nil, 3)

	// Both tokens match the same message; it must appear once.
	hits, err := retriever.searchByKeyword("chat-2", []string{"pizza", "party"}, 5)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 deduped hit, got %d", len(hits))
	}
}

func TestSearchSessionSummaries(t *testing.T) {
	store := NewMemStore(64)
	now := time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)

	store.AddSession(Session{
		ID: "s1", ChatID: "chat-1", Status: SessionSummarized,
		StartedAt: now.Add(-48 * time.Hour).Unix(), EndedAt: now.Add(-47 * time.Hour).Unix(),
		SummaryText: "ana, ben\nben: Let's plan a pizza party this weekend!",
		TopicTags:   []string{"pizza", "party"},
	})
	store.AddSession(Session{
		ID: "s2", ChatID: "chat-1", Status: SessionSummarized,
		StartedAt: now.Add(-24 * time.Hour).Unix(), EndedAt: now.Add(-23 * time.Hour).Unix(),
		SummaryText: "ana, cho\ncho: book club meets thursday",
		TopicTags:   []string{"book", "club"},
	})
	store.AddSession(Session{
		ID: "s3", ChatID: "chat-1", Status: SessionClosed,
		StartedAt: now.Add(-12 * time.Hour).Unix(), EndedAt: now.Add(-11 * time.Hour).Unix(),
	})

	retriever := NewRetriever(store, store, testEmbedder(), 5)
	retriever.now = func() time.Time { return now }

	hits, err := retriever.SearchSessionSummaries(context.Background(), "chat-1", "pizza party", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected only the pizza session, got %d hits", len(hits))
	}
	if hits[0].SessionID != "s1" {
		t.Fatalf("wrong session ranked first: %s", hits[0].SessionID)
	}
	if hits[0].Score <= 0 {
		t.Fatalf("expected positive score, got %f", hits[0].Score)
	}
}

func TestSearchSessionSummariesTagMatch(t *testing.T) {
	store := NewMemStore(64)
	now := time.Now()

	store.AddSession(Session{
		ID: "s1", ChatID: "chat-1", Status: SessionSummarized,
		StartedAt: now.Add(-2 * time.Hour).Unix(), EndedAt: now.Add(-1 * time.Hour).Unix(),
		SummaryText: "ana\nana: we settled the venue question",
		TopicTags:   []string{"trivia", "downtown"},
	})

	retriever := NewRetriever(store, store, testEmbedder(), 5)
	hits, err := retriever.SearchSessionSummaries(context.Background(), "chat-1", "trivia downtown", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("tag-only match should hit, got %d", len(hits))
	}
}

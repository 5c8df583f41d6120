package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/memory"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memory.db"), opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t, Options{})

	msgs := []struct {
		sender string
		text   string
		ts     int64
	}{
		{"ana", "first", 100},
		{"ben", "second", 200},
		{"cho", "third", 300},
	}
	for _, m := range msgs {
		if err := s.Append("chat-1", m.sender, m.text, m.ts); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recent, err := s.Recent("chat-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
	if recent[0].Text != "third" || recent[1].Text != "second" {
		t.Fatalf("recent not newest-first: %v", recent)
	}

	count, err := s.MessageCount("chat-1")
	if err != nil || count != 3 {
		t.Fatalf("message count: %d, %v", count, err)
	}
}

func TestAppendRejectsEmptyChat(t *testing.T) {
	s := openTestStore(t, Options{})
	if err := s.Append("   ", "ana", "text", 100); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestAppendTruncatesLongText(t *testing.T) {
	s := openTestStore(t, Options{MaxMessageChars: 20})

	long := strings.Repeat("é", 30)
	if err := s.Append("chat-1", "ana", long, 100); err != nil {
		t.Fatalf("append: %v", err)
	}

	recent, err := s.Recent("chat-1", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent[0].Text) > 20 {
		t.Fatalf("text not truncated: %d bytes", len(recent[0].Text))
	}
	if strings.ContainsRune(recent[0].Text, 0xFFFD) {
		t.Fatalf("truncation split a rune: %q", recent[0].Text)
	}
}

func TestAppendPrunesFIFO(t *testing.T) {
	s := openTestStore(t, Options{MaxMessagesPerChat: 5})

	for i := 0; i < 8; i++ {
		if err := s.Append("chat-1", "ana", "msg", int64(100+i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	count, err := s.MessageCount("chat-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected pruned count 5, got %d", count)
	}

	// The survivors are the newest ones.
	between, err := s.Between("chat-1", 0, 1000)
	if err != nil {
		t.Fatalf("between: %v", err)
	}
	if between[0].Timestamp != 103 {
		t.Fatalf("oldest survivor should be ts=103, got %d", between[0].Timestamp)
	}
}

func TestBetween(t *testing.T) {
	s := openTestStore(t, Options{})
	for i := 0; i < 5; i++ {
		if err := s.Append("chat-1", "ana", "msg", int64(100+i*100)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.Between("chat-1", 200, 400)
	if err != nil {
		t.Fatalf("between: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected inclusive bounds, got %d messages", len(msgs))
	}
	if msgs[0].Timestamp != 200 || msgs[2].Timestamp != 400 {
		t.Fatalf("between not oldest-first inclusive: %v", msgs)
	}
}

func TestSearchByKeyword(t *testing.T) {
	s := openTestStore(t, Options{})
	fixtures := []struct {
		text string
		ts   int64
	}{
		{"Let's plan a pizza party this weekend!", 100},
		{"anyone seen my charger?", 200},
		{"PIZZA again tonight?", 300},
	}
	for _, f := range fixtures {
		if err := s.Append("chat-1", "ana", f.text, f.ts); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	hits, err := s.SearchByKeyword("chat-1", "pizza", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected case-insensitive match on 2 messages, got %d", len(hits))
	}
	if hits[0].Timestamp != 300 {
		t.Fatalf("expected newest-first, got ts=%d first", hits[0].Timestamp)
	}

	// LIKE metacharacters are literals, not wildcards.
	hits, err = s.SearchByKeyword("chat-1", "%", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("%% should match nothing literally, got %d hits", len(hits))
	}

	hits, err = s.SearchByKeyword("chat-1", "   ", 10)
	if err != nil || len(hits) != 0 {
		t.Fatalf("blank pattern should yield nothing, got %d, %v", len(hits), err)
	}
}

func TestSearchByKeywordScopedToChat(t *testing.T) {
	s := openTestStore(t, Options{})
	if err := s.Append("chat-1", "ana", "pizza here", 100); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append("chat-2", "ben", "pizza there", 200); err != nil {
		t.Fatalf("append: %v", err)
	}

	hits, err := s.SearchByKeyword("chat-1", "pizza", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "pizza here" {
		t.Fatalf("search leaked across chats: %v", hits)
	}
}

func TestVectorSearchRequiresBackfill(t *testing.T) {
	s := openTestStore(t, Options{})
	if err := s.Append("chat-1", "ana", "pizza party planning", 100); err != nil {
		t.Fatalf("append: %v", err)
	}

	query := memory.DeterministicEmbedding("pizza party", 64)
	hits, err := s.SearchByVector("chat-1", query, 5)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("unembedded rows must be invisible to vector search, got %d", len(hits))
	}
}

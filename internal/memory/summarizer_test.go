package memory

import (
	"strings"
	"testing"
)

func TestScoreMessage(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
	}{
		{"question", "anyone free friday?", 3 + 3}, // question + weekday
		{"url", "check https://example.com/menu please", 2},
		{"decision", "sounds good, count me in", 2},
		{"short", "ok", -2},
		{"emoji only", "🎉🎉", -2 - 3}, // short + emoji-only
		{"plain", "we should figure out the venue", 0},
		{"blank", "   ", -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scoreMessage(tc.text); got != tc.want {
				t.Fatalf("scoreMessage(%q)=%d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestSummarizeChronologicalOrder(t *testing.T) {
	msgs := []Message{
		{Sender: "ana", Text: "anyone around for trivia on friday?", Timestamp: 100},
		{Sender: "ben", Text: "trivia night at 7pm downtown", Timestamp: 200},
		{Sender: "cho", Text: "I'm in! let's meet at the door", Timestamp: 300},
		{Sender: "ana", Text: "agreed, see everyone there on friday", Timestamp: 400},
	}

	summary := Summarize(msgs, []string{"ana", "ben", "cho"})
	if summary.Text == "" {
		t.Fatal("expected non-empty summary")
	}

	first := strings.Index(summary.Text, "anyone around")
	second := strings.Index(summary.Text, "trivia night at 7pm")
	if first == -1 || second == -1 {
		t.Fatalf("summary missing expected lines: %q", summary.Text)
	}
	if first > second {
		t.Fatalf("summary not in conversation order: %q", summary.Text)
	}
	if !strings.Contains(summary.Text, "ana, ben, cho") {
		t.Fatalf("summary missing participant list: %q", summary.Text)
	}
}

func TestSummarizeCapsLength(t *testing.T) {
	long := strings.Repeat("this keeps going and going with plenty of detail, ", 10)
	msgs := make([]Message, 0, 12)
	for i := 0; i < 12; i++ {
		msgs = append(msgs, Message{Sender: "ana", Text: long, Timestamp: int64(i * 60)})
	}

	summary := Summarize(msgs, []string{"ana"})
	if len(summary.Text) > summaryMaxChars+len("…") {
		t.Fatalf("summary length %d exceeds cap %d", len(summary.Text), summaryMaxChars)
	}
	if !strings.HasSuffix(summary.Text, "…") {
		t.Fatalf("expected ellipsis truncation, got tail %q", summary.Text[len(summary.Text)-8:])
	}
}

func TestSummarizeParticipantOverflow(t *testing.T) {
	participants := []string{"ana", "ben", "cho", "dee", "eli", "fay", "gus"}
	msgs := []Message{{Sender: "ana", Text: "planning the next meetup for saturday?", Timestamp: 1}}

	summary := Summarize(msgs, participants)
	if !strings.Contains(summary.Text, "+2 more") {
		t.Fatalf("expected participant overflow marker, got %q", summary.Text)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize(nil, nil); got.Text != "" || len(got.TopicTags) != 0 {
		t.Fatalf("expected zero summary for no messages, got %+v", got)
	}
}

func TestTopicTags(t *testing.T) {
	msgs := []Message{
		{Sender: "ana", Text: "trivia night downtown", Timestamp: 1},
		{Sender: "ben", Text: "trivia works for me", Timestamp: 2},
		{Sender: "cho", Text: "trivia it is then", Timestamp: 3},
	}
	tags := topicTags(msgs)
	if len(tags) == 0 {
		t.Fatal("expected topic tags")
	}
	if tags[0] != "trivia" {
		t.Fatalf("expected most repeated term first, got %v", tags)
	}
	if len(tags) > summaryMaxTopicTags {
		t.Fatalf("tags exceed cap: %v", tags)
	}
}

func TestTruncateTextRuneSafe(t *testing.T) {
	text := "héllo wörld, this has multibyte runes in it"
	got := truncateText(text, 10)
	if len(got) > 10+len("…") {
		t.Fatalf("truncated length %d too long", len(got))
	}
	for _, r := range got {
		if r == 0xFFFD {
			t.Fatalf("truncation split a rune: %q", got)
		}
	}
}

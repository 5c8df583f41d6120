package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	summaryKeepTop         = 8
	summaryMaxChars        = 500
	summaryLineMaxChars    = 120
	summaryMaxParticipants = 5
	summaryMaxTopicTags    = 6
)

var (
	urlRegex      = regexp.MustCompile(`https?://\S+`)
	dateTimeRegex = regexp.MustCompile(`(?i)\b(today|tomorrow|tonight|weekend|monday|tuesday|wednesday|thursday|friday|saturday|sunday|january|february|march|april|may|june|july|august|september|october|november|december|\d{1,2}(:\d{2})?\s?(am|pm)|\d{4}-\d{2}-\d{2})\b`)
	decisionRegex = regexp.MustCompile(`(?i)\b(let's|lets|we will|we'll|agreed|agree|decided|decide|deal|confirmed|confirm|i'm in|im in|count me in|sounds good|plan(ning)? to)\b`)
)

// Summary is the extractive compression of a closed session.
type Summary struct {
	Text      string
	TopicTags []string
}

// Summarize builds an extractive summary: score every message, keep the
// top scorers, re-sort them chronologically, and render capped output.
// Pure function, no I/O.
func Summarize(messages []Message, participants []string) Summary {
	if len(messages) == 0 {
		return Summary{}
	}

	type scored struct {
		msg   Message
		score int
		pos   int
	}

	items := make([]scored, 0, len(messages))
	for i, msg := range messages {
		items = append(items, scored{msg: msg, score: scoreMessage(msg.Text), pos: i})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score == items[j].score {
			return items[i].pos < items[j].pos
		}
		return items[i].score > items[j].score
	})

	keep := summaryKeepTop
	if keep > len(items) {
		keep = len(items)
	}
	kept := items[:keep]

	// Summaries read in conversation order, not score order.
	sort.Slice(kept, func(i, j int) bool { return kept[i].pos < kept[j].pos })

	var sb strings.Builder
	sb.WriteString(formatParticipants(participants))
	sb.WriteString("\n")
	for _, item := range kept {
		line := fmt.Sprintf("%s: %s", item.msg.Sender, truncateText(strings.TrimSpace(item.msg.Text), summaryLineMaxChars))
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return Summary{
		Text:      truncateText(strings.TrimSpace(sb.String()), summaryMaxChars),
		TopicTags: topicTags(messages),
	}
}

// scoreMessage applies the importance heuristics used for extractive
// compression. Higher is more worth keeping.
func scoreMessage(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return -3
	}

	score := 0
	if strings.Contains(trimmed, "?") {
		score += 3
	}
	if urlRegex.MatchString(trimmed) {
		score += 2
	}
	if dateTimeRegex.MatchString(trimmed) {
		score += 3
	}
	if decisionRegex.MatchString(trimmed) {
		score += 2
	}
	if len(trimmed) > 100 {
		score++
	}
	if len(trimmed) > 200 {
		score++
	}
	if len(trimmed) < 15 {
		score -= 2
	}
	if isEmojiOnly(trimmed) {
		score -= 3
	}
	return score
}

func isEmojiOnly(text string) bool {
	sawSymbol := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		sawSymbol = true
	}
	return sawSymbol
}

// topicTags is a light lexical pass over the session's text; the retriever
// matches these against query tokens. Empty result is valid.
func topicTags(messages []Message) []string {
	counts := map[string]int{}
	order := make([]string, 0)
	for _, msg := range messages {
		for _, term := range extractTerms(msg.Text) {
			if counts[term] == 0 {
				order = append(order, term)
			}
			counts[term]++
		}
	}

	// Prefer repeated terms, fall back to first-seen order.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > summaryMaxTopicTags {
		order = order[:summaryMaxTopicTags]
	}
	return order
}

func formatParticipants(participants []string) string {
	if len(participants) == 0 {
		return "(no participants)"
	}
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)

	shown := sorted
	overflow := 0
	if len(sorted) > summaryMaxParticipants {
		shown = sorted[:summaryMaxParticipants]
		overflow = len(sorted) - summaryMaxParticipants
	}
	out := strings.Join(shown, ", ")
	if overflow > 0 {
		out += fmt.Sprintf(" +%d more", overflow)
	}
	return out
}

func truncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars - 1
	for cut > 0 && !isRuneBoundary(text, cut) {
		cut--
	}
	return text[:cut] + "…"
}

func isRuneBoundary(s string, i int) bool {
	return i == 0 || i >= len(s) || (s[i]&0xC0) != 0x80
}

package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Rerank merges message-level and session-level candidates into one ranked
// list using a shared lexical-plus-recency score. Output items carry their
// source so the assembler can format each kind differently. Equal scores
// keep input order, messages before sessions.
func Rerank(messages []Message, sessions []SessionSummaryHit, query string, now time.Time, limit int) []RankedCandidate {
	tokens := queryTokens(query)
	nowUnix := now.Unix()

	candidates := make([]RankedCandidate, 0, len(messages)+len(sessions))
	for i := range messages {
		msg := messages[i]
		recency := nowUnix - msg.Timestamp
		candidates = append(candidates, RankedCandidate{
			Source:         SourceMessage,
			Text:           msg.Text,
			Attribution:    msg.Sender,
			Score:          candidateScore(tokens, msg.Text, recency),
			RecencySeconds: recency,
			Message:        &msg,
		})
	}
	for i := range sessions {
		hit := sessions[i]
		recency := nowUnix - hit.EndedAt
		text := hit.SummaryText
		if len(hit.TopicTags) > 0 {
			text = hit.SummaryText + " " + strings.Join(hit.TopicTags, " ")
		}
		candidates = append(candidates, RankedCandidate{
			Source:         SourceSession,
			Text:           hit.SummaryText,
			Attribution:    formatSessionRange(hit.StartedAt, hit.EndedAt),
			Score:          candidateScore(tokens, text, recency),
			RecencySeconds: recency,
			Session:        &hit,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// candidateScore is the scoring function shared by both sources: lexical
// overlap dominates, recency breaks ties.
func candidateScore(tokens []string, text string, recencySeconds int64) float64 {
	return lexicalOverlap(tokens, text) + sessionRecencyWeight*recencyDecay(recencySeconds)
}

func formatSessionRange(startedAt, endedAt int64) string {
	start := time.Unix(startedAt, 0).UTC()
	end := time.Unix(endedAt, 0).UTC()
	if start.Format("2006-01-02") == end.Format("2006-01-02") {
		return start.Format("2006-01-02")
	}
	return fmt.Sprintf("%s – %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}

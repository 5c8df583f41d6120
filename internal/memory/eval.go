package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jjhickman/garbanzo-bot-sub001/internal/config"
)

// EvalQuery is a labeled retrieval fixture: the query counts as fully
// recalled when every expected evidence substring appears somewhere in the
// returned candidate text.
type EvalQuery struct {
	Label            string   `json:"label"`
	Query            string   `json:"query"`
	ExpectedEvidence []string `json:"expectedEvidence"`
}

// EvalResult is one query's outcome, with literal candidate snippets kept
// for debugging.
type EvalResult struct {
	Label      string   `json:"label"`
	RecallAtK  float64  `json:"recallAtK"`
	Hits       int      `json:"hits"`
	Expected   int      `json:"expected"`
	Noise      bool     `json:"noise"`
	Candidates []string `json:"candidates"`
}

// EvalSummary aggregates a run. All fields are zero on empty input.
type EvalSummary struct {
	MeanRecallAtK      float64      `json:"meanRecallAtK"`
	PerfectRecallCount int          `json:"perfectRecallCount"`
	NoiseCount         int          `json:"noiseCount"`
	Results            []EvalResult `json:"results"`
}

// EvalMessage is a message fixture bound to a chat.
type EvalMessage struct {
	ChatID  string
	Message Message
}

const (
	evalChatID = "eval-chat"
	// Fixtures sit days apart so one query's evidence cannot bleed into
	// another's recall measurement.
	evalSessionSpacing = 3 * 24 * time.Hour
	evalMessageSpacing = 90 * time.Second
)

// GenerateSyntheticData fabricates one summarized session plus its raw
// messages per query, with every expected evidence string genuinely
// present and the sessions well separated in time.
func GenerateSyntheticData(queries []EvalQuery) ([]EvalMessage, []Session) {
	messages := make([]EvalMessage, 0)
	sessions := make([]Session, 0, len(queries))

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for qi, query := range queries {
		start := base.Add(time.Duration(qi) * evalSessionSpacing)
		ts := start

		sessionMsgs := make([]Message, 0, len(query.ExpectedEvidence)+2)
		for ei, evidence := range query.ExpectedEvidence {
			sender := fmt.Sprintf("member%d", ei%3+1)
			msg := Message{Sender: sender, Text: evidence, Timestamp: ts.Unix()}
			sessionMsgs = append(sessionMsgs, msg)
			messages = append(messages, EvalMessage{ChatID: evalChatID, Message: msg})
			ts = ts.Add(evalMessageSpacing)
		}
		// Filler keeps summaries from being pure evidence strings.
		filler := Message{
			Sender:    "member1",
			Text:      fmt.Sprintf("anyway, moving on from %s stuff", query.Label),
			Timestamp: ts.Unix(),
		}
		sessionMsgs = append(sessionMsgs, filler)
		messages = append(messages, EvalMessage{ChatID: evalChatID, Message: filler})
		ts = ts.Add(evalMessageSpacing)

		participants := []string{"member1", "member2", "member3"}
		summary := Summarize(sessionMsgs, participants)
		sessions = append(sessions, Session{
			ID:             uuid.NewString(),
			ChatID:         evalChatID,
			StartedAt:      start.Unix(),
			EndedAt:        ts.Unix(),
			MessageCount:   len(sessionMsgs),
			Participants:   participants,
			Status:         SessionSummarized,
			SummaryText:    summary.Text,
			TopicTags:      summary.TopicTags,
			SummaryVersion: 1,
		})
	}

	return messages, sessions
}

// RunEvaluation measures recall@K of the retrieval+rerank pipeline over
// in-memory fixtures, bypassing any live store. It never panics on empty
// input; everything aggregates to zero.
func RunEvaluation(queries []EvalQuery, messages []EvalMessage, sessions []Session, k int) EvalSummary {
	summary := EvalSummary{Results: make([]EvalResult, 0, len(queries))}
	if len(queries) == 0 {
		return summary
	}
	if k <= 0 {
		k = 5
	}

	store := NewMemStore(64)
	for _, fixture := range messages {
		_ = store.Append(fixture.ChatID, fixture.Message.Sender, fixture.Message.Text, fixture.Message.Timestamp)
	}
	for _, session := range sessions {
		store.AddSession(session)
	}

	embedder := NewEmbedder(config.EmbeddingConfig{Provider: "deterministic", Dimension: 64})
	retriever := NewRetriever(store, store, embedder, len(sessions)+1)

	ctx := context.Background()
	totalRecall := 0.0
	for _, query := range queries {
		result := evaluateQuery(ctx, retriever, query, k)
		totalRecall += result.RecallAtK
		if result.Expected > 0 && result.RecallAtK == 1.0 {
			summary.PerfectRecallCount++
		}
		if result.Noise {
			summary.NoiseCount++
		}
		summary.Results = append(summary.Results, result)
	}
	summary.MeanRecallAtK = totalRecall / float64(len(queries))
	return summary
}

func evaluateQuery(ctx context.Context, retriever *Retriever, query EvalQuery, k int) EvalResult {
	result := EvalResult{Label: query.Label, Expected: len(query.ExpectedEvidence)}

	msgHits, _ := retriever.SearchMessages(ctx, evalChatID, query.Query, k)
	sessionHits, _ := retriever.SearchSessionSummaries(ctx, evalChatID, query.Query, k)

	var candidates []string
	if len(msgHits) > 0 && len(sessionHits) > 0 {
		ranked := Rerank(msgHits, sessionHits, query.Query, time.Now(), k)
		for _, candidate := range ranked {
			candidates = append(candidates, candidate.Text)
		}
	} else {
		for _, hit := range msgHits {
			candidates = append(candidates, hit.Text)
		}
		for _, hit := range sessionHits {
			candidates = append(candidates, hit.SummaryText)
		}
		if len(candidates) > k {
			candidates = candidates[:k]
		}
	}
	result.Candidates = candidates

	joined := strings.ToLower(strings.Join(candidates, "\n"))
	for _, evidence := range query.ExpectedEvidence {
		if strings.Contains(joined, strings.ToLower(evidence)) {
			result.Hits++
		}
	}

	if result.Expected > 0 {
		result.RecallAtK = float64(result.Hits) / float64(result.Expected)
	}
	result.Noise = len(candidates) > 0 && result.Hits == 0
	return result
}

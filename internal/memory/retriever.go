package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// sessionRecencyWeight keeps recency a secondary signal: a session with
// full lexical overlap always outscores one matched on recency alone.
const sessionRecencyWeight = 0.25

// Retriever answers queries from two sources: raw stored messages
// (keyword LIKE fallback or vector similarity when the store supports it)
// and summarized session summaries.
type Retriever struct {
	messages    MessageStore
	sessions    SessionStore
	embedder    Embedder
	maxSessions int
	now         func() time.Time
}

func NewRetriever(messages MessageStore, sessions SessionStore, embedder Embedder, maxSessions int) *Retriever {
	if maxSessions <= 0 {
		maxSessions = 3
	}
	return &Retriever{
		messages:    messages,
		sessions:    sessions,
		embedder:    embedder,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

// SearchMessages returns up to limit stored messages relevant to query.
// An empty or unparseable query yields an empty result, not an error.
func (r *Retriever) SearchMessages(ctx context.Context, chatID, query string, limit int) ([]Message, error) {
	chatID = normalizeChatID(chatID)
	if chatID == "" || limit <= 0 {
		return nil, nil
	}
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	if vs, ok := r.messages.(VectorSearcher); ok && r.embedder != nil {
		hits, err := r.searchByVector(ctx, vs, chatID, query, limit)
		if err != nil {
			log.Printf("[retriever] vector search failed, falling back to keyword: %v", err)
		} else if len(hits) > 0 {
			return hits, nil
		}
	}

	return r.searchByKeyword(chatID, tokens, limit)
}

func (r *Retriever) searchByVector(ctx context.Context, vs VectorSearcher, chatID, query string, limit int) ([]Message, error) {
	embedded, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := vs.SearchByVector(chatID, embedded.Vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

func (r *Retriever) searchByKeyword(chatID string, tokens []string, limit int) ([]Message, error) {
	seen := make(map[string]struct{})
	results := make([]Message, 0, limit)

	for _, token := range tokens {
		hits, err := r.messages.SearchByKeyword(chatID, token, limit)
		if err != nil {
			return nil, fmt.Errorf("retriever: keyword search %q: %w", token, err)
		}
		for _, hit := range hits {
			key := hit.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			results = append(results, hit)
			if len(results) >= limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// SearchSessionSummaries scores summarized sessions against the query and
// returns the best limit hits. Only summarized sessions with non-empty
// text are eligible; zero lexical overlap excludes a session outright.
func (r *Retriever) SearchSessionSummaries(ctx context.Context, chatID, query string, limit int) ([]SessionSummaryHit, error) {
	chatID = normalizeChatID(chatID)
	if chatID == "" || limit <= 0 {
		return nil, nil
	}
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := r.sessions.RecentSummarized(chatID, r.maxSessions)
	if err != nil {
		return nil, fmt.Errorf("retriever: load summarized sessions: %w", err)
	}

	now := r.now().Unix()
	hits := make([]SessionSummaryHit, 0, len(candidates))
	for i := range candidates {
		session := candidates[i]
		if session.Status != SessionSummarized || strings.TrimSpace(session.SummaryText) == "" {
			continue
		}
		score := scoreSessionMatch(tokens, &session, now)
		if score <= 0 {
			continue
		}
		hits = append(hits, SessionSummaryHit{
			SessionID:    session.ID,
			StartedAt:    session.StartedAt,
			EndedAt:      session.EndedAt,
			MessageCount: session.MessageCount,
			Participants: session.Participants,
			TopicTags:    session.TopicTags,
			SummaryText:  session.SummaryText,
			Score:        score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// scoreSessionMatch combines lexical overlap against the summary text and
// topic tags with a bounded recency bonus.
func scoreSessionMatch(tokens []string, session *Session, nowUnix int64) float64 {
	overlap := lexicalOverlap(tokens, session.SummaryText)
	if tagOverlap := lexicalOverlap(tokens, strings.Join(session.TopicTags, " ")); tagOverlap > overlap {
		overlap = tagOverlap
	}
	if overlap == 0 {
		return 0
	}
	return overlap + sessionRecencyWeight*recencyDecay(nowUnix-session.EndedAt)
}

package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const olderSummaryMinMessages = 3

// AssemblerConfig sizes the context windows.
type AssemblerConfig struct {
	RecentMessages int
	OlderMessages  int
	RelevantLimit  int
}

// Assembler is the engine's entry point: it combines verbatim recent
// messages, retrieved relevant messages and session summaries, and a
// cached extractive summary of the older window into one prompt-ready
// string. The caller inserts the result into its prompt verbatim.
type Assembler struct {
	messages  MessageStore
	retriever *Retriever
	cache     *SummaryCache
	metrics   *Metrics
	cfg       AssemblerConfig
	now       func() time.Time
}

func NewAssembler(messages MessageStore, retriever *Retriever, cache *SummaryCache, metrics *Metrics, cfg AssemblerConfig) *Assembler {
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = 12
	}
	if cfg.OlderMessages <= 0 {
		cfg.OlderMessages = 30
	}
	if cfg.RelevantLimit <= 0 {
		cfg.RelevantLimit = 5
	}
	if cache == nil {
		cache = NewSummaryCache(10*time.Minute, 256)
	}
	return &Assembler{
		messages:  messages,
		retriever: retriever,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

// FormatContext builds the context block for one query. Empty history is a
// valid state for new chats and yields "", not an error.
func (a *Assembler) FormatContext(ctx context.Context, chatID, queryText string) (string, error) {
	chatID = normalizeChatID(chatID)
	if chatID == "" {
		return "", nil
	}

	window, err := a.messages.Recent(chatID, a.cfg.RecentMessages+a.cfg.OlderMessages)
	if err != nil {
		return "", fmt.Errorf("assembler: load recent window: %w", err)
	}
	if len(window) == 0 {
		return "", nil
	}

	// Recent() is newest-first; flip to chronological once, then split.
	chronological := make([]Message, len(window))
	for i, msg := range window {
		chronological[len(window)-1-i] = msg
	}
	recent := chronological
	var older []Message
	if len(chronological) > a.cfg.RecentMessages {
		split := len(chronological) - a.cfg.RecentMessages
		older = chronological[:split]
		recent = chronological[split:]
	}

	var blocks []string

	if strings.TrimSpace(queryText) != "" {
		if relevant := a.relevantBlocks(ctx, chatID, queryText, recent); len(relevant) > 0 {
			blocks = append(blocks, relevant...)
		}
	}

	if len(older) >= olderSummaryMinMessages {
		if summary := a.olderSummary(chatID, older); summary != "" {
			blocks = append(blocks, "Summary of older messages:\n"+summary)
		}
	}

	blocks = append(blocks, "Recent messages:\n"+renderMessages(recent))

	a.metrics.recordContext()
	return strings.Join(blocks, "\n\n"), nil
}

// relevantBlocks runs retrieval for both sources, drops message hits that
// duplicate the recent verbatim window, and renders either the reranked
// merged list (both sources hit) or the single present source directly.
func (a *Assembler) relevantBlocks(ctx context.Context, chatID, queryText string, recent []Message) []string {
	msgHits, err := a.retriever.SearchMessages(ctx, chatID, queryText, a.cfg.RelevantLimit)
	if err != nil {
		log.Printf("[assembler] message retrieval warning: %v", err)
	}
	sessionHits, err := a.retriever.SearchSessionSummaries(ctx, chatID, queryText, a.cfg.RelevantLimit)
	if err != nil {
		log.Printf("[assembler] session retrieval warning: %v", err)
	}

	recentKeys := make(map[string]struct{}, len(recent))
	for _, msg := range recent {
		recentKeys[msg.Key()] = struct{}{}
	}
	deduped := msgHits[:0]
	for _, hit := range msgHits {
		if _, dup := recentKeys[hit.Key()]; dup {
			continue
		}
		deduped = append(deduped, hit)
	}
	msgHits = deduped

	a.metrics.recordSessionSummaries(len(sessionHits), totalSummaryChars(sessionHits))

	switch {
	case len(msgHits) > 0 && len(sessionHits) > 0:
		ranked := Rerank(msgHits, sessionHits, queryText, a.now(), a.cfg.RelevantLimit)
		return renderRanked(ranked)
	case len(msgHits) > 0:
		return []string{"Relevant messages from earlier in this chat:\n" + renderMessages(msgHits)}
	case len(sessionHits) > 0:
		return []string{"Relevant past sessions:\n" + renderSessionHits(sessionHits)}
	default:
		return nil
	}
}

// olderSummary compresses the older window with the session summarizer's
// heuristics, cached per chat and window size for the cache TTL. A change
// in the window's message count changes the key and so invalidates it.
func (a *Assembler) olderSummary(chatID string, older []Message) string {
	key := fmt.Sprintf("%s:%d", chatID, len(older))
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	participants := make([]string, 0)
	seen := map[string]struct{}{}
	for _, msg := range older {
		if _, ok := seen[msg.Sender]; ok {
			continue
		}
		seen[msg.Sender] = struct{}{}
		participants = append(participants, msg.Sender)
	}

	summary := Summarize(older, participants).Text
	if summary != "" {
		a.cache.Set(key, summary)
	}
	return summary
}

func renderMessages(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString("[")
		sb.WriteString(msg.Sender)
		sb.WriteString("]: ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSessionHits(hits []SessionSummaryHit) string {
	var sb strings.Builder
	for i := range hits {
		sb.WriteString(renderSessionHit(&hits[i]))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderSessionHit(hit *SessionSummaryHit) string {
	var sb strings.Builder
	sb.WriteString("- [")
	sb.WriteString(formatSessionRange(hit.StartedAt, hit.EndedAt))
	sb.WriteString("]")
	if len(hit.TopicTags) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(hit.TopicTags, ", "))
		sb.WriteString(")")
	}
	sb.WriteString(" ")
	sb.WriteString(strings.ReplaceAll(hit.SummaryText, "\n", " / "))
	return sb.String()
}

func renderRanked(ranked []RankedCandidate) []string {
	var messageLines, sessionLines []string
	for i := range ranked {
		candidate := ranked[i]
		switch candidate.Source {
		case SourceMessage:
			messageLines = append(messageLines, fmt.Sprintf("[%s]: %s", candidate.Attribution, candidate.Text))
		case SourceSession:
			sessionLines = append(sessionLines, renderSessionHit(candidate.Session))
		}
	}

	var blocks []string
	if len(messageLines) > 0 {
		blocks = append(blocks, "Relevant messages from earlier in this chat:\n"+strings.Join(messageLines, "\n"))
	}
	if len(sessionLines) > 0 {
		blocks = append(blocks, "Relevant past sessions:\n"+strings.Join(sessionLines, "\n"))
	}
	return blocks
}

func totalSummaryChars(hits []SessionSummaryHit) int {
	total := 0
	for i := range hits {
		total += len(hits[i].SummaryText)
	}
	return total
}

package memory

import (
	"math"
	"regexp"
	"strings"
)

const maxQueryTokens = 4

var wordRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_\-]{2,}`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "are": {}, "was": {},
	"this": {}, "that": {}, "with": {}, "have": {}, "has": {}, "had": {},
	"not": {}, "but": {}, "what": {}, "when": {}, "where": {}, "who": {},
	"why": {}, "how": {}, "can": {}, "will": {}, "just": {}, "its": {},
	"they": {}, "them": {}, "there": {}, "here": {}, "from": {}, "about": {},
	"anyone": {}, "everyone": {}, "gonna": {}, "yeah": {}, "okay": {},
}

// queryTokens tokenizes a retrieval query: lowercase, drop tokens shorter
// than 3 chars, cap at maxQueryTokens.
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,!?;:'"()[]`)
		if len(f) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
		if len(tokens) >= maxQueryTokens {
			break
		}
	}
	return tokens
}

// extractTerms pulls distinct lowercase word terms from free text,
// filtering stopwords. Used for topic tags and lexical overlap scoring.
func extractTerms(text string) []string {
	terms := make([]string, 0)
	seen := map[string]struct{}{}
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// lexicalOverlap is the fraction of query tokens present in the text
// (substring match, lowercase). Returns 0..1.
func lexicalOverlap(tokens []string, text string) float64 {
	if len(tokens) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// recencyDecay maps age to (0,1], newer closer to 1. The half-life is
// around two weeks so recency stays a tiebreaker, not the signal.
func recencyDecay(ageSeconds int64) float64 {
	if ageSeconds <= 0 {
		return 1
	}
	ageDays := float64(ageSeconds) / 86400
	return math.Exp(-0.05 * ageDays)
}

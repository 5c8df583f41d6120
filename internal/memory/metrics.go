package memory

import "sync/atomic"

// Metrics counts what the assembler injects into prompts. Recording is
// fire-and-forget; nothing in the return contract depends on it.
type Metrics struct {
	sessionSummariesInjected atomic.Int64
	sessionSummaryChars      atomic.Int64
	contextsBuilt            atomic.Int64
}

func (m *Metrics) recordSessionSummaries(count, chars int) {
	if m == nil {
		return
	}
	m.sessionSummariesInjected.Add(int64(count))
	m.sessionSummaryChars.Add(int64(chars))
}

func (m *Metrics) recordContext() {
	if m == nil {
		return
	}
	m.contextsBuilt.Add(1)
}

// MetricsSnapshot is a point-in-time copy for status reporting.
type MetricsSnapshot struct {
	SessionSummariesInjected int64
	SessionSummaryChars      int64
	ContextsBuilt            int64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		SessionSummariesInjected: m.sessionSummariesInjected.Load(),
		SessionSummaryChars:      m.sessionSummaryChars.Load(),
		ContextsBuilt:            m.contextsBuilt.Load(),
	}
}

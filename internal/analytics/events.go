package analytics

import "time"

type EventType string

const (
	EventRetrieval  EventType = "retrieval"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventZeroResult EventType = "zero_result"
	EventReindex    EventType = "reindex"
)

// RetrievalEvent describes one retrieval call for downstream analytics.
type RetrievalEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Model      string    `json:"model"`
	UsePRF     bool      `json:"use_prf"`
	Expanded   bool      `json:"expanded"`
	K          int       `json:"k"`
	Candidates int       `json:"candidates"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// ReindexEvent records an index rebuild.
type ReindexEvent struct {
	Type       EventType `json:"type"`
	CorpusPath string    `json:"corpus_path"`
	Docs       int       `json:"docs"`
	Terms      int       `json:"terms"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

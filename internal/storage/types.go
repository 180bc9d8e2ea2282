package storage

import "time"

// Session is one recording span, from startRecording to stopRecording.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time // nil while the session is still open
	Source    string     // "daemon", "resume"
}

// SessionSummary pairs a session with its stored message count.
type SessionSummary struct {
	Session
	MessageCount int64
}

// StoredMessage is one captured audit message with storage metadata.
// Payload holds the canonical message JSON exactly as it was emitted.
type StoredMessage struct {
	ID        int64
	SessionID string
	Action    string
	URL       string
	Domain    string
	Title     string
	Text      string
	Timestamp time.Time
	Payload   []byte
}

// RecordingState mirrors the persisted control flags the daemon
// bootstraps from.
type RecordingState struct {
	Recording bool
	SessionID string
}

// SearchQuery defines filters for searching messages.
type SearchQuery struct {
	Query     string
	Action    string
	SessionID string
	Domain    string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Stats holds aggregate statistics about the audit database.
type Stats struct {
	TotalSessions int64
	OpenSessions  int64
	TotalMessages int64
	OldestMessage time.Time
	NewestMessage time.Time
	ByAction      map[string]int64
	TopDomains    []DomainCount
}

// DomainCount pairs a domain with its message count.
type DomainCount struct {
	Domain string
	Count  int64
}

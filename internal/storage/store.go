package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeweaver-pro/auditrec/internal/capture"
)

// Control table keys for the persisted recording state.
const (
	controlRecording = "recording"
	controlSessionID = "session_id"
)

var validActions = map[string]bool{
	capture.ActionClickDetected:   true,
	capture.ActionFormInteraction: true,
	capture.ActionPageChanged:     true,
}

// Store defines the interface for audit data operations.
type Store interface {
	StartSession(ctx context.Context, source string) (*Session, error)
	EndSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, error)
	CloseOpenSessions(ctx context.Context) (int64, error)
	AddMessage(ctx context.Context, sessionID string, msg capture.Message) error
	GetSessionMessages(ctx context.Context, sessionID string) ([]StoredMessage, error)
	SearchMessages(ctx context.Context, query SearchQuery) ([]StoredMessage, error)
	CountMessagesBefore(ctx context.Context, olderThan time.Time) (int64, error)
	RecordingState(ctx context.Context) (RecordingState, error)
	SetRecordingState(ctx context.Context, recording bool, sessionID string) error
	AddExclusionRules(ctx context.Context, domains, regexes []string) error
	PruneExpired(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	insertSession *sql.Stmt
	endSession    *sql.Stmt
	getSession    *sql.Stmt
	insertMessage *sql.Stmt

	// Cached exclusion rules (loaded once at init)
	domainExclusions []string
	regexExclusions  []*regexp.Regexp
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	if err := s.initFTS(); err != nil {
		return nil, fmt.Errorf("init FTS: %w", err)
	}

	if err := s.loadExclusions(); err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, started_at, source)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.endSession, err = s.db.Prepare(`
		UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
	`)
	if err != nil {
		return err
	}

	s.getSession, err = s.db.Prepare(`
		SELECT id, started_at, ended_at, source FROM sessions WHERE id = ?
	`)
	if err != nil {
		return err
	}

	s.insertMessage, err = s.db.Prepare(`
		INSERT INTO messages (session_id, action, url, domain, title, text, ts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	return nil
}

// initFTS creates the FTS5 virtual table for full-text search if it doesn't exist.
func (s *SQLiteStore) initFTS() error {
	_, err := s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			message_id UNINDEXED,
			text,
			url,
			title,
			tokenize='unicode61'
		)
	`)
	return err
}

// loadExclusions loads domain and regex exclusion rules from the database.
func (s *SQLiteStore) loadExclusions() error {
	rows, err := s.db.Query("SELECT rule_type, rule_value FROM exclusions")
	if err != nil {
		return err
	}
	defer rows.Close()

	s.domainExclusions = nil
	s.regexExclusions = nil

	for rows.Next() {
		var ruleType, ruleValue string
		if err := rows.Scan(&ruleType, &ruleValue); err != nil {
			return err
		}
		switch ruleType {
		case "domain":
			s.domainExclusions = append(s.domainExclusions, ruleValue)
		case "regex":
			re, err := regexp.Compile(ruleValue)
			if err != nil {
				continue // skip invalid regex
			}
			s.regexExclusions = append(s.regexExclusions, re)
		}
	}

	return rows.Err()
}

// isExcluded checks if a domain is blocked by exclusion rules.
func (s *SQLiteStore) isExcluded(domain string) bool {
	for _, d := range s.domainExclusions {
		if d == domain {
			return true
		}
	}
	for _, re := range s.regexExclusions {
		if re.MatchString(domain) {
			return true
		}
	}
	return false
}

// AddExclusionRules inserts config-supplied denylist rules and reloads
// the exclusion cache. Rules already present are left untouched.
func (s *SQLiteStore) AddExclusionRules(ctx context.Context, domains, regexes []string) error {
	const insertSQL = `INSERT OR IGNORE INTO exclusions (rule_type, rule_value, reason, is_default) VALUES (?, ?, 'config', 0)`

	for _, d := range domains {
		if _, err := s.db.ExecContext(ctx, insertSQL, "domain", d); err != nil {
			return fmt.Errorf("insert domain rule: %w", err)
		}
	}
	for _, re := range regexes {
		if _, err := s.db.ExecContext(ctx, insertSQL, "regex", re); err != nil {
			return fmt.Errorf("insert regex rule: %w", err)
		}
	}

	return s.loadExclusions()
}

// ftsQuery converts a user search string into a valid FTS5 query.
// Each word becomes a quoted prefix token joined with OR.
func ftsQuery(input string) string {
	words := strings.Fields(input)
	if len(words) == 0 {
		return ""
	}
	var parts []string
	for _, w := range words {
		// Quote each term, add prefix wildcard for partial matching
		parts = append(parts, `"`+w+`"*`)
	}
	return strings.Join(parts, " OR ")
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// extractDomain pulls the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// StartSession opens a new recording session and returns it.
func (s *SQLiteStore) StartSession(ctx context.Context, source string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Source:    source,
	}

	_, err := s.insertSession.ExecContext(ctx,
		sess.ID, sess.StartedAt.Format(time.RFC3339), sess.Source,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return sess, nil
}

// EndSession marks an open session as ended. Ending a session that is
// unknown or already closed is an error.
func (s *SQLiteStore) EndSession(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.endSession.ExecContext(ctx, now, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found or already ended", id)
	}

	return nil
}

// GetSession retrieves a single session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	var startedStr string
	var endedStr sql.NullString

	err := s.getSession.QueryRowContext(ctx, id).Scan(
		&sess.ID, &startedStr, &endedStr, &sess.Source,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.StartedAt, _ = parseTimestamp(startedStr)
	if endedStr.Valid {
		if t, err := parseTimestamp(endedStr.String); err == nil {
			sess.EndedAt = &t
		}
	}

	return &sess, nil
}

// ListSessions returns sessions newest-first with their message counts.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.ended_at, s.source, COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		var startedStr string
		var endedStr sql.NullString
		if err := rows.Scan(&sum.ID, &startedStr, &endedStr, &sum.Source, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.StartedAt, _ = parseTimestamp(startedStr)
		if endedStr.Valid {
			if t, err := parseTimestamp(endedStr.String); err == nil {
				sum.EndedAt = &t
			}
		}
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// CloseOpenSessions marks every still-open session as ended. The daemon
// calls this at startup so a crash never leaves sessions dangling.
func (s *SQLiteStore) CloseOpenSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE ended_at IS NULL", now,
	)
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	return res.RowsAffected()
}

// AddMessage stores one audit message under a session. The domain is
// extracted from the message URL; messages for excluded domains are
// silently skipped, matching how denylisted pages must leave no trace.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, msg capture.Message) error {
	if !validActions[msg.Action] {
		return fmt.Errorf("invalid action %q", msg.Action)
	}

	domain := extractDomain(msg.URL)
	if s.isExcluded(domain) {
		return nil // silently skip
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	title := stringValue(msg.Title)
	text := stringValue(msg.Text)
	tsFormatted := time.Now().UTC().Format(time.RFC3339)

	res, err := s.insertMessage.ExecContext(ctx,
		sessionID, msg.Action, msg.URL, domain, title, text, tsFormatted, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}

	// Index in FTS
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages_fts (message_id, text, url, title) VALUES (?, ?, ?, ?)",
		id, text, msg.URL, title,
	)
	if err != nil {
		return fmt.Errorf("insert FTS: %w", err)
	}

	return nil
}

// GetSessionMessages returns every message of a session in capture order.
func (s *SQLiteStore) GetSessionMessages(ctx context.Context, sessionID string) ([]StoredMessage, error) {
	return s.scanMessages(ctx, `
		SELECT id, session_id, action, url, domain, title, text, ts, payload
		FROM messages
		WHERE session_id = ?
		ORDER BY ts ASC, id ASC
	`, sessionID)
}

// SearchMessages queries messages with optional filters.
func (s *SQLiteStore) SearchMessages(ctx context.Context, q SearchQuery) ([]StoredMessage, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	// If there's a text query, use FTS
	if q.Query != "" {
		return s.searchFTS(ctx, q)
	}

	return s.searchFiltered(ctx, q)
}

// searchFTS uses the FTS5 index for keyword search, then joins with the
// messages table for filtering.
func (s *SQLiteStore) searchFTS(ctx context.Context, q SearchQuery) ([]StoredMessage, error) {
	var clauses []string
	var args []interface{}

	baseQuery := `
		SELECT m.id, m.session_id, m.action, m.url, m.domain, m.title, m.text, m.ts, m.payload
		FROM messages_fts f
		JOIN messages m ON m.id = f.message_id
	`

	clauses = append(clauses, "messages_fts MATCH ?")
	args = append(args, ftsQuery(q.Query))

	if q.Action != "" {
		clauses = append(clauses, "m.action = ?")
		args = append(args, q.Action)
	}
	if q.SessionID != "" {
		clauses = append(clauses, "m.session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Domain != "" {
		clauses = append(clauses, "m.domain = ?")
		args = append(args, q.Domain)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "m.ts >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "m.ts <= ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339))
	}

	fullQuery := baseQuery + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY rank LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	return s.scanMessages(ctx, fullQuery, args...)
}

// searchFiltered queries messages using standard SQL filters (no FTS).
func (s *SQLiteStore) searchFiltered(ctx context.Context, q SearchQuery) ([]StoredMessage, error) {
	var clauses []string
	var args []interface{}

	baseQuery := `
		SELECT id, session_id, action, url, domain, title, text, ts, payload
		FROM messages
	`

	if q.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, q.Action)
	}
	if q.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Domain != "" {
		clauses = append(clauses, "domain = ?")
		args = append(args, q.Domain)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	fullQuery := baseQuery + where + " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	return s.scanMessages(ctx, fullQuery, args...)
}

// scanMessages executes a query and scans results into StoredMessage slices.
func (s *SQLiteStore) scanMessages(ctx context.Context, query string, args ...interface{}) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var tsStr string
		var payload string
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Action, &m.URL, &m.Domain,
			&m.Title, &m.Text, &tsStr, &payload,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = parseTimestamp(tsStr)
		m.Payload = []byte(payload)
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Return empty slice rather than nil
	if messages == nil {
		messages = []StoredMessage{}
	}

	return messages, nil
}

// CountMessagesBefore counts messages with timestamps before olderThan.
// Used by the prune dry-run.
func (s *SQLiteStore) CountMessagesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE ts < ?",
		olderThan.UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// RecordingState reads the persisted recording flags. A database that
// has never recorded yields the zero state: idle, no session.
func (s *SQLiteStore) RecordingState(ctx context.Context) (RecordingState, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM control WHERE key IN (?, ?)",
		controlRecording, controlSessionID,
	)
	if err != nil {
		return RecordingState{}, fmt.Errorf("read control: %w", err)
	}
	defer rows.Close()

	var state RecordingState
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return RecordingState{}, fmt.Errorf("scan control: %w", err)
		}
		switch key {
		case controlRecording:
			state.Recording = value == "1"
		case controlSessionID:
			state.SessionID = value
		}
	}

	return state, rows.Err()
}

// SetRecordingState persists the recording flags so the daemon can
// bootstrap into the same state after a restart.
func (s *SQLiteStore) SetRecordingState(ctx context.Context, recording bool, sessionID string) error {
	rec := "0"
	if recording {
		rec = "1"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `INSERT OR REPLACE INTO control (key, value, updated_at) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, upsert, controlRecording, rec, now); err != nil {
		return fmt.Errorf("set recording flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, controlSessionID, sessionID, now); err != nil {
		return fmt.Errorf("set session id: %w", err)
	}

	return tx.Commit()
}

// PruneExpired deletes messages with timestamps before olderThan, then
// drops ended sessions that no longer have any messages.
func (s *SQLiteStore) PruneExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tsFormatted := olderThan.UTC().Format(time.RFC3339)

	// Clean FTS entries first
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages_fts WHERE message_id IN (
			SELECT id FROM messages WHERE ts < ?
		)`, tsFormatted,
	)
	if err != nil {
		return 0, fmt.Errorf("prune FTS: %w", err)
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE ts < ?", tsFormatted)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE ended_at IS NOT NULL AND ended_at < ?
		   AND id NOT IN (SELECT DISTINCT session_id FROM messages)`,
		tsFormatted,
	)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}

	return res.RowsAffected()
}

// PurgeAll deletes all sessions, messages and control state. Exclusion
// rules survive a purge.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	stmts := []string{
		"DROP TABLE IF EXISTS messages_fts",
		"DELETE FROM messages",
		"DELETE FROM sessions",
		"DELETE FROM control",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge (%s): %w", stmt, err)
		}
	}
	// Recreate FTS table
	return s.initFTS()
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByAction: map[string]int64{}}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL",
	).Scan(&stats.OpenSessions)
	if err != nil {
		return nil, fmt.Errorf("count open sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&stats.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	// Oldest and newest (handle empty DB)
	if stats.TotalMessages > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRowContext(ctx, "SELECT MIN(ts), MAX(ts) FROM messages").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("message time range: %w", err)
		}
		stats.OldestMessage, _ = parseTimestamp(oldestStr)
		stats.NewestMessage, _ = parseTimestamp(newestStr)
	}

	// Message counts per action
	actionRows, err := s.db.QueryContext(ctx,
		"SELECT action, COUNT(*) FROM messages GROUP BY action",
	)
	if err != nil {
		return nil, fmt.Errorf("count by action: %w", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		var action string
		var count int64
		if err := actionRows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.ByAction[action] = count
	}
	if err := actionRows.Err(); err != nil {
		return nil, err
	}

	// Top domains
	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, COUNT(*) as cnt FROM messages WHERE domain != '' GROUP BY domain ORDER BY cnt DESC LIMIT 10",
	)
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, err
		}
		stats.TopDomains = append(stats.TopDomains, dc)
	}

	return stats, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is not
// closed; that remains the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.insertSession, s.endSession, s.getSession, s.insertMessage,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

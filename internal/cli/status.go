package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string            `json:"version"`
	DatabasePath      string            `json:"database_path"`
	DatabaseSizeBytes int64             `json:"database_size_bytes"`
	TotalSessions     int64             `json:"total_sessions"`
	OpenSessions      int64             `json:"open_sessions"`
	TotalMessages     int64             `json:"total_messages"`
	ByAction          map[string]int64  `json:"by_action"`
	OldestMessage     string            `json:"oldest_message,omitempty"`
	NewestMessage     string            `json:"newest_message,omitempty"`
	RetentionDays     int               `json:"retention_days"`
	TopDomains        []domainCountJSON `json:"top_domains"`
	DaemonRunning     bool              `json:"daemon_running"`
	Recording         bool              `json:"recording"`
	SessionID         string            `json:"session_id,omitempty"`
}

type domainCountJSON struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	store, db, err := openDefaultStore(c.globals)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store, db)
}

// executeWithStore runs status against a provided store and db (for testing).
func (c *StatusCommand) executeWithStore(store *storage.SQLiteStore, db *sql.DB) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	state, err := store.RecordingState(ctx)
	if err != nil {
		return fmt.Errorf("read recording state: %w", err)
	}

	path := dbPath(c.globals)
	dbSize := getDatabaseSize(db, path)

	daemonRunning := checkDaemon()

	retentionDays := defaultRetentionDays

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(stats, state, path, dbSize, daemonRunning, retentionDays)
	}
	return c.printStatusHuman(stats, state, path, dbSize, daemonRunning, retentionDays)
}

func (c *StatusCommand) printStatusHuman(stats *storage.Stats, state storage.RecordingState, path string, dbSize int64, daemonRunning bool, retentionDays int) error {
	fmt.Println("Auditrec Status")
	fmt.Println("===============")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s)\n", path, formatBytes(dbSize))
	fmt.Printf("Sessions:      %s (%s open)\n", formatNumber(stats.TotalSessions), formatNumber(stats.OpenSessions))
	fmt.Printf("Messages:      %s\n", formatNumber(stats.TotalMessages))

	// Per-action breakdown
	if len(stats.ByAction) > 0 {
		for _, action := range []string{"clickDetected", "formInteraction", "pageChanged"} {
			if count, ok := stats.ByAction[action]; ok {
				fmt.Printf("  %-18s %s\n", action, formatNumber(count))
			}
		}
	}

	// Time range
	if stats.TotalMessages > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestMessage.Local().Format("2006-01-02"))
		fmt.Printf("Newest:        %s\n", stats.NewestMessage.Local().Format("2006-01-02"))
	}

	fmt.Printf("Retention:     %d days\n", retentionDays)

	// Top domains
	if len(stats.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Domains:")
		for _, d := range stats.TopDomains {
			fmt.Printf("  %-20s %s\n", d.Domain, formatNumber(d.Count))
		}
	}

	fmt.Println()
	if daemonRunning {
		fmt.Println("Daemon:        running")
	} else {
		fmt.Println("Daemon:        not running")
	}
	if state.Recording {
		fmt.Printf("Recording:     active (session %s)\n", state.SessionID)
	} else {
		fmt.Println("Recording:     idle")
	}

	return nil
}

func (c *StatusCommand) printStatusJSON(stats *storage.Stats, state storage.RecordingState, path string, dbSize int64, daemonRunning bool, retentionDays int) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      path,
		DatabaseSizeBytes: dbSize,
		TotalSessions:     stats.TotalSessions,
		OpenSessions:      stats.OpenSessions,
		TotalMessages:     stats.TotalMessages,
		ByAction:          stats.ByAction,
		RetentionDays:     retentionDays,
		TopDomains:        make([]domainCountJSON, len(stats.TopDomains)),
		DaemonRunning:     daemonRunning,
		Recording:         state.Recording,
		SessionID:         state.SessionID,
	}

	if stats.TotalMessages > 0 {
		out.OldestMessage = stats.OldestMessage.UTC().Format(time.RFC3339)
		out.NewestMessage = stats.NewestMessage.UTC().Format(time.RFC3339)
	}

	for i, d := range stats.TopDomains {
		out.TopDomains[i] = domainCountJSON{Domain: d.Domain, Count: d.Count}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// getDatabaseSize returns the database file size in bytes.
// For on-disk databases, it uses os.Stat. For in-memory databases,
// it queries page_count * page_size.
func getDatabaseSize(db *sql.DB, path string) int64 {
	// Try file stat first
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}

	// Fallback: query SQLite for in-memory or unavailable file
	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// checkDaemon attempts an HTTP GET to the default daemon endpoint.
// Returns true if the daemon responds within 1 second.
func checkDaemon() bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get("http://127.0.0.1:8126/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
		if len(s) > remainder {
			result.WriteString(",")
		}
	}
	for i := remainder; i < len(s); i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

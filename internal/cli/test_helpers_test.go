package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/codeweaver-pro/auditrec/internal/capture"
	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// newTestStore creates a migrated in-memory store for command tests.
func newTestStore(t *testing.T) (*storage.SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner := storage.NewMigrationRunner(db)
	require.NoError(t, runner.Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db
}

func newTestSession(t *testing.T, store *storage.SQLiteStore) *storage.Session {
	t.Helper()
	sess, err := store.StartSession(context.Background(), "daemon")
	require.NoError(t, err)
	return sess
}

func addClick(t *testing.T, store *storage.SQLiteStore, sessionID, url, text string) {
	t.Helper()
	msg := capture.Message{
		Action:  capture.ActionClickDetected,
		Element: &capture.Element{Tag: "button"},
		Text:    &text,
		URL:     url,
	}
	require.NoError(t, store.AddMessage(context.Background(), sessionID, msg))
}

func addInput(t *testing.T, store *storage.SQLiteStore, sessionID, url string) {
	t.Helper()
	msg := capture.Message{
		Action: capture.ActionFormInteraction,
		Field:  &capture.InputField{Tag: "input", Type: "text", Name: "q"},
		Type:   capture.InteractionInput,
		URL:    url,
	}
	require.NoError(t, store.AddMessage(context.Background(), sessionID, msg))
}

func addPage(t *testing.T, store *storage.SQLiteStore, sessionID, url, title string) {
	t.Helper()
	msg := capture.Message{
		Action: capture.ActionPageChanged,
		URL:    url,
		Title:  &title,
	}
	require.NoError(t, store.AddMessage(context.Background(), sessionID, msg))
}

// backdateMessages rewrites the timestamp of every message currently in
// the database, so retention behavior is testable without waiting.
func backdateMessages(t *testing.T, db *sql.DB, to time.Time) {
	t.Helper()
	_, err := db.Exec("UPDATE messages SET ts = ?", to.UTC().Format(time.RFC3339))
	require.NoError(t, err)
}

// backdateSession moves a session's start time, so list ordering is
// deterministic even when sessions are created within the same second.
func backdateSession(t *testing.T, db *sql.DB, sessionID string, to time.Time) {
	t.Helper()
	_, err := db.Exec("UPDATE sessions SET started_at = ? WHERE id = ?",
		to.UTC().Format(time.RFC3339), sessionID)
	require.NoError(t, err)
}

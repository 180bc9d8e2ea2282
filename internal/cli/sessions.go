package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/codeweaver-pro/auditrec/internal/storage"
)

type sessionJSON struct {
	ID        string `json:"id"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Source    string `json:"source"`
	Messages  int64  `json:"messages"`
}

type sessionsJSON struct {
	Count    int           `json:"count"`
	Sessions []sessionJSON `json:"sessions"`
}

// Execute implements the go-flags Commander interface for SessionsCommand.
func (c *SessionsCommand) Execute(args []string) error {
	store, db, err := openDefaultStore(c.globals)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore lists sessions from a provided store (for testing).
func (c *SessionsCommand) executeWithStore(store *storage.SQLiteStore) error {
	summaries, err := store.ListSessions(context.Background(), c.Limit, c.Offset)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return c.printJSON(summaries)
	}
	return c.printHuman(summaries)
}

func (c *SessionsCommand) printHuman(summaries []storage.SessionSummary) error {
	if len(summaries) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	for i, s := range summaries {
		fmt.Printf("%d. %s\n", i+1+c.Offset, s.ID)

		started := s.StartedAt.Local().Format("2006-01-02 15:04")
		status := "open"
		if s.EndedAt != nil {
			dur := s.EndedAt.Sub(s.StartedAt).Round(time.Second)
			status = fmt.Sprintf("ended %s (%s)", s.EndedAt.Local().Format("2006-01-02 15:04"), dur)
		}

		messageWord := "messages"
		if s.MessageCount == 1 {
			messageWord = "message"
		}
		fmt.Printf("   started %s · %s · %s %s · %s\n",
			started, status, formatNumber(s.MessageCount), messageWord, s.Source)

		if i < len(summaries)-1 {
			fmt.Println()
		}
	}

	return nil
}

func (c *SessionsCommand) printJSON(summaries []storage.SessionSummary) error {
	out := sessionsJSON{
		Count:    len(summaries),
		Sessions: make([]sessionJSON, len(summaries)),
	}

	for i, s := range summaries {
		sj := sessionJSON{
			ID:        s.ID,
			StartedAt: s.StartedAt.UTC().Format(time.RFC3339),
			Source:    s.Source,
			Messages:  s.MessageCount,
		}
		if s.EndedAt != nil {
			sj.EndedAt = s.EndedAt.UTC().Format(time.RFC3339)
		}
		out.Sessions[i] = sj
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	store, db, err := openDefaultStore(c.globals)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store, args)
}

// executeWithStore runs the search against a provided store (for testing).
func (c *SearchCommand) executeWithStore(store *storage.SQLiteStore, args []string) error {
	query := strings.Join(args, " ")

	now := time.Now()
	var since time.Time
	if c.Since != "" {
		dur, err := parseDuration(c.Since)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", c.Since, err)
		}
		since = now.Add(-dur)
	}

	var until time.Time
	if c.Until != "" {
		dur, err := parseDuration(c.Until)
		if err != nil {
			return fmt.Errorf("invalid --until value %q: %w", c.Until, err)
		}
		until = now.Add(-dur)
	}

	sq := storage.SearchQuery{
		Query:     query,
		Action:    c.Action,
		SessionID: c.Session,
		Since:     since,
		Until:     until,
		Limit:     c.Limit,
		Offset:    c.Offset,
	}
	if len(c.Domain) > 0 {
		sq.Domain = c.Domain[0]
	}

	ctx := context.Background()
	results, err := store.SearchMessages(ctx, sq)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return c.printJSON(query, results)
	}
	return c.printHuman(query, results)
}

// messageLabel picks the most useful one-line label for a message:
// click text for clicks, page title for navigations.
func messageLabel(m storage.StoredMessage) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Title
}

func (c *SearchCommand) printHuman(query string, results []storage.StoredMessage) error {
	if len(results) == 0 {
		if query != "" {
			fmt.Printf("No results found for %q (since %s)\n", query, c.Since)
		} else {
			fmt.Printf("No results found (since %s)\n", c.Since)
		}
		return nil
	}

	resultWord := "results"
	if len(results) == 1 {
		resultWord = "result"
	}
	if query != "" {
		fmt.Printf("Found %d %s for %q (since %s)\n\n", len(results), resultWord, query, c.Since)
	} else {
		fmt.Printf("Found %d %s (since %s)\n\n", len(results), resultWord, c.Since)
	}

	for i, m := range results {
		fmt.Printf("%d. %s", i+1+c.Offset, m.Action)
		if label := messageLabel(m); label != "" {
			fmt.Printf(" — %q", label)
		}
		fmt.Println()

		fmt.Printf("   %s\n", m.URL)

		meta := m.Timestamp.Local().Format("2006-01-02 15:04")
		if m.Domain != "" {
			meta += " · " + m.Domain
		}
		meta += " · session " + shortID(m.SessionID)
		fmt.Printf("   %s\n", meta)

		if i < len(results)-1 {
			fmt.Println()
		}
	}

	return nil
}

// shortID abbreviates a session UUID for terminal output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type jsonResult struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp string `json:"timestamp"`
}

type jsonSearchOutput struct {
	Count   int          `json:"count"`
	Query   string       `json:"query"`
	Results []jsonResult `json:"results"`
}

func (c *SearchCommand) printJSON(query string, results []storage.StoredMessage) error {
	out := jsonSearchOutput{
		Count:   len(results),
		Query:   query,
		Results: make([]jsonResult, len(results)),
	}

	for i, m := range results {
		out.Results[i] = jsonResult{
			ID:        m.ID,
			SessionID: m.SessionID,
			Action:    m.Action,
			URL:       m.URL,
			Domain:    m.Domain,
			Title:     m.Title,
			Text:      m.Text,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/codeweaver-pro/auditrec/internal/capture"
	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	if c.Session == "" {
		return fmt.Errorf("--session is required")
	}

	store, db, err := openDefaultStore(c.globals)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore exports a session from a provided store (for testing).
// Output is JSON Lines: one envelope per message, in capture order.
func (c *ExportCommand) executeWithStore(store *storage.SQLiteStore) error {
	ctx := context.Background()

	sess, err := store.GetSession(ctx, c.Session)
	if err != nil {
		return err
	}

	msgs, err := store.GetSessionMessages(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	var out io.Writer = os.Stdout
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, m := range msgs {
		var msg capture.Message
		if err := json.Unmarshal(m.Payload, &msg); err != nil {
			return fmt.Errorf("decode message %d: %w", m.ID, err)
		}

		env := capture.Envelope{
			SessionID: sess.ID,
			At:        m.Timestamp,
			Message:   msg,
		}
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("write message %d: %w", m.ID, err)
		}
	}

	// A summary on stdout would corrupt the stream when exporting there
	if c.Output != "" {
		messageWord := "messages"
		if len(msgs) == 1 {
			messageWord = "message"
		}
		fmt.Printf("Exported %d %s to %s\n", len(msgs), messageWord, c.Output)
	}

	return nil
}

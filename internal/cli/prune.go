package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	store, db, err := openDefaultStore(c.globals)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore applies pruning against a provided store (for testing).
func (c *PruneCommand) executeWithStore(store *storage.SQLiteStore) error {
	retention := time.Duration(defaultRetentionDays) * 24 * time.Hour
	if c.OlderThan != "" {
		dur, err := parseDuration(c.OlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", c.OlderThan, err)
		}
		retention = dur
	}

	ctx := context.Background()
	cutoff := time.Now().Add(-retention)

	if c.DryRun {
		count, err := store.CountMessagesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("count messages: %w", err)
		}

		if c.globals != nil && c.globals.JSON {
			out := map[string]interface{}{
				"dry_run":     true,
				"would_prune": count,
				"older_than":  formatDurationHuman(retention),
			}
			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(out)
		}

		messageWord := "messages"
		if count == 1 {
			messageWord = "message"
		}
		fmt.Printf("Would prune %s %s older than %s (dry run).\n",
			formatNumber(count), messageWord, formatDurationHuman(retention))
		return nil
	}

	pruned, err := store.PruneExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"pruned":     pruned,
			"older_than": formatDurationHuman(retention),
		}
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(out)
	}

	messageWord := "messages"
	if pruned == 1 {
		messageWord = "message"
	}
	fmt.Printf("Pruned %s %s older than %s.\n",
		formatNumber(pruned), messageWord, formatDurationHuman(retention))
	return nil
}

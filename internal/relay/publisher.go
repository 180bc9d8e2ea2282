// Package relay publishes captured audit messages to a Redis channel so
// external consumers can follow a recording session live.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeweaver-pro/auditrec/internal/capture"
	"github.com/codeweaver-pro/auditrec/internal/logger"
)

const publishTimeout = 5 * time.Second

// Publisher forwards audit messages to a Redis pub/sub channel. Delivery
// is fire-and-forget: a slow or unreachable broker never blocks capture.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher wraps an existing Redis client. The caller keeps ownership
// of the client and is responsible for closing it.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Deliver implements capture.Sink. The envelope is marshalled
// synchronously; the publish itself runs in a background goroutine with
// its own timeout, and failures are logged rather than returned.
func (p *Publisher) Deliver(_ context.Context, sessionID string, msg capture.Message) error {
	env := capture.Envelope{
		SessionID: sessionID,
		At:        time.Now().UTC(),
		Message:   msg,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
			logger.Warn("relay publish failed", "channel", p.channel, "error", err.Error())
		}
	}()

	return nil
}

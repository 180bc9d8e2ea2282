package storage

import (
	"context"

	"github.com/codeweaver-pro/auditrec/internal/capture"
)

// MessageSink adapts a Store to the capture.Sink interface so the
// recorder can persist what it emits.
type MessageSink struct {
	store Store
}

// NewSink wraps a store as a capture sink.
func NewSink(store Store) *MessageSink {
	return &MessageSink{store: store}
}

func (k *MessageSink) Deliver(ctx context.Context, sessionID string, msg capture.Message) error {
	return k.store.AddMessage(ctx, sessionID, msg)
}

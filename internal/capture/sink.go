package capture

import (
	"context"
	"errors"
)

// Sink receives the messages a recorder emits. Implementations must be
// safe for concurrent use; deliveries happen from request goroutines
// and from the navigation settle timer.
type Sink interface {
	Deliver(ctx context.Context, sessionID string, msg Message) error
}

// Fanout delivers each message to every sink in order. A failing sink
// does not stop the others; the errors are joined.
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, sessionID string, msg Message) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, sessionID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

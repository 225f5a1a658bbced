package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// WriteLines writes every event received by sub to w as one JSON object per
// line. It returns when ctx is done or the subscriber is closed.
func WriteLines(ctx context.Context, sub *Subscriber, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

package bus

import (
	"context"
	"encoding/json"
)

// Bus fans JSON messages out to every subscriber of a channel.
type Bus interface {
	Publish(ctx context.Context, channel string, msg any) error
	// Subscribe delivers payloads until ctx is done. It returns once the subscription is live.
	Subscribe(ctx context.Context, channel string, onMsg func(payload []byte)) error
	Close() error
}

func encode(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(msg)
	}
}

// Package eventbus provides the message transport between the relay, the router and the executor.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
)

// KeyMetadata carries the partition key of a message.
const KeyMetadata = "key"

// Decision tells the transport what to do with a consumed message.
type Decision int

const (
	// Commit acknowledges the message and advances the offset.
	Commit Decision = iota
	// Redeliver leaves the message uncommitted so it is handled again.
	Redeliver
	// Skip moves past the message without committing it.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Commit:
		return "commit"
	case Redeliver:
		return "redeliver"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

type Message struct {
	ID        string
	Topic     string
	Key       string
	Body      []byte
	Partition int
	Offset    int64
}

type Handler func(ctx context.Context, msg Message) Decision

type Publisher interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
}

type Subscriber interface {
	// Subscribe starts consuming topic in the background until ctx is done.
	// Messages of one subscription are handled one at a time.
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

type EventBus interface {
	Publisher
	Subscriber
	Close() error
}

// PublishJSON encodes event and publishes it.
func PublishJSON(ctx context.Context, publisher Publisher, topic, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	return publisher.Publish(ctx, topic, key, body)
}

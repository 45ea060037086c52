package events

import (
	"context"
	"encoding/json"
	"time"
)

// BookChannel is the channel all book lifecycle events are published to.
const BookChannel = "book-events"

// Book event types.
const (
	BookCreated = "book.created"
	BookUpdated = "book.updated"
	BookDeleted = "book.deleted"
)

// BookEvent describes a change to a book record.
type BookEvent struct {
	Type    string    `json:"type"`
	BookID  int       `json:"book_id"`
	ActorID int       `json:"actor_id"`
	At      time.Time `json:"at"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Bus wraps a backend with a stable API.
type Bus struct {
	backend Backend
}

// NewBus constructs a Bus for the provided backend.
func NewBus(backend Backend) *Bus {
	return &Bus{backend: backend}
}

// PublishBookEvent serializes the event and publishes it to BookChannel.
func (b *Bus) PublishBookEvent(ctx context.Context, event BookEvent) (string, error) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return b.backend.Publish(ctx, BookChannel, data, map[string]string{"type": event.Type})
}

// Subscribe consumes messages from the named channel.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return b.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	return b.backend.Close()
}

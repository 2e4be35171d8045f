package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names the kind of catalog change
type Type string

const (
	ProductCreated Type = "product.created"
	ProductUpdated Type = "product.updated"
	ProductDeleted Type = "product.deleted"
)

// Event announces a committed product write
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ProductID  string    `json:"product_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time
func New(t Type, productID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		ProductID:  productID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher announces changes after a successful write
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber delivers changes until ctx is done; the channel is then closed
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Feed both publishes and subscribes
type Feed interface {
	Publisher
	Subscriber
}

// Fanout publishes every event to all publishers and joins their errors
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

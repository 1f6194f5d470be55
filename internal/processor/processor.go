package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"trade_desk/internal/domain"

	"github.com/google/uuid"
)

// errNoChange aborts a store update without persisting and without failing
// the operation.
var errNoChange = errors.New("no change")

// EventPublisher receives lifecycle events after they are persisted.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) {}

type Options struct {
	Now       func() time.Time
	Location  *time.Location
	Publisher EventPublisher
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Publisher == nil {
		o.Publisher = nopPublisher{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func newEvent(t domain.EventType, entityID string, actor domain.Actor, at time.Time) domain.Event {
	return domain.Event{
		ID:        uuid.NewString(),
		Type:      t,
		EntityID:  entityID,
		Actor:     actor,
		Timestamp: at,
	}
}

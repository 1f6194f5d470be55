package service

import (
	"context"
	"log/slog"
	"sync"
	"trade_desk/internal/domain"
)

// LogSubscriber writes every event to the structured log.
type LogSubscriber struct {
	logger *slog.Logger
}

func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubscriber{logger: logger}
}

func (s *LogSubscriber) Name() string { return "log" }

func (s *LogSubscriber) Handle(ctx context.Context, event domain.Event) error {
	s.logger.InfoContext(ctx, "Lifecycle event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.String("entity_id", event.EntityID),
		slog.String("from", event.From),
		slog.String("to", event.To),
		slog.String("actor", event.Actor.String()))
	return nil
}

type LedgerCounter interface {
	SaleRecorded()
	PurchaseRecorded()
}

// MetricsSubscriber turns ledger events into counters.
type MetricsSubscriber struct {
	counter LedgerCounter
}

func NewMetricsSubscriber(counter LedgerCounter) *MetricsSubscriber {
	return &MetricsSubscriber{counter: counter}
}

func (s *MetricsSubscriber) Name() string { return "metrics" }

func (s *MetricsSubscriber) Handle(_ context.Context, event domain.Event) error {
	switch event.Type {
	case domain.EventSaleRecorded:
		s.counter.SaleRecorded()
	case domain.EventPurchaseRecorded:
		s.counter.PurchaseRecorded()
	}
	return nil
}

// RecentEvents keeps the last events in memory for the presentation layer to
// poll. Oldest entries are evicted first.
type RecentEvents struct {
	mu     sync.RWMutex
	events []domain.Event
	limit  int
}

func NewRecentEvents(limit int) *RecentEvents {
	if limit <= 0 {
		limit = 100
	}
	return &RecentEvents{limit: limit}
}

func (r *RecentEvents) Name() string { return "recent" }

func (r *RecentEvents) Handle(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append([]domain.Event(nil), r.events[over:]...)
	}
	return nil
}

// List returns up to n events, newest first. n <= 0 returns all.
func (r *RecentEvents) List(n int) []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.events) {
		n = len(r.events)
	}
	out := make([]domain.Event, 0, n)
	for i := len(r.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.events[i])
	}
	return out
}

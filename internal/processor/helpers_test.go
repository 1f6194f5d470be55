package processor

import (
	"context"
	"sync"
	"testing"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
	"trade_desk/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(_ context.Context, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store      *memory.Store
	clock      *testClock
	publisher  *capturePublisher
	accounts   *AccountProcessor
	tickets    *TicketProcessor
	stats      *StatsLedger
	reconciler *Reconciler
	registry   *ConfigRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, memory.NewStore(), time.UTC)
}

func newHarnessWith(t *testing.T, store *memory.Store, loc *time.Location) *harness {
	t.Helper()
	clock := newTestClock()
	publisher := &capturePublisher{}
	opts := Options{Now: clock.Now, Location: loc, Publisher: publisher}

	stats := NewStatsLedger(store, time.Minute, opts)
	return &harness{
		store:      store,
		clock:      clock,
		publisher:  publisher,
		accounts:   NewAccountProcessor(store, opts),
		tickets:    NewTicketProcessor(store, stats, opts),
		stats:      stats,
		reconciler: NewReconciler(store, opts),
		registry:   NewConfigRegistry(store),
	}
}

func (h *harness) statsDoc(t *testing.T) domain.StatsDocument {
	t.Helper()
	var doc domain.StatsDocument
	require.NoError(t, h.store.Read(context.Background(), repository.CollectionStats, &doc))
	return doc
}

func (h *harness) ticketsDoc(t *testing.T) domain.TicketsDocument {
	t.Helper()
	var doc domain.TicketsDocument
	require.NoError(t, h.store.Read(context.Background(), repository.CollectionTickets, &doc))
	return doc
}

func (h *harness) openTicket(t *testing.T, category string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.OpenTicket(context.Background(), TicketRequest{
		Requester: domain.Actor{ID: "u1", Name: "requester"},
		Category:  category,
		Payload:   "selling a " + category + " account",
	})
	require.NoError(t, err)
	return ticket
}

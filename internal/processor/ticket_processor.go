package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
	"trade_desk/pkg/validator"
)

// SaleRecorder appends sale entries to the statistics ledger.
type SaleRecorder interface {
	RecordSale(ctx context.Context, entry domain.SaleEntry) error
}

type TicketRequest struct {
	Requester domain.Actor
	Category  string
	Payload   string
	Notes     string
	ChannelID string
}

type SaleRequest struct {
	Buyer  string
	Price  string
	Seller domain.Actor
}

type TicketProcessor struct {
	store     repository.LedgerStore
	sales     SaleRecorder
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewTicketProcessor(store repository.LedgerStore, sales SaleRecorder, opts Options) *TicketProcessor {
	opts = opts.withDefaults()
	return &TicketProcessor{
		store:     store,
		sales:     sales,
		publisher: opts.Publisher,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

func (p *TicketProcessor) OpenTicket(ctx context.Context, req TicketRequest) (*domain.Ticket, error) {
	if strings.TrimSpace(req.Category) == "" {
		return nil, domain.Validationf("ticket category is required")
	}
	if strings.TrimSpace(req.Payload) == "" {
		return nil, domain.Validationf("ticket payload is required")
	}

	var doc domain.TicketsDocument
	var ticket *domain.Ticket
	err := p.store.Update(ctx, repository.CollectionTickets, &doc, func() error {
		now := p.now()
		ticket = &domain.Ticket{
			ID:        doc.NextID(),
			Requester: req.Requester,
			Category:  req.Category,
			Payload:   req.Payload,
			Notes:     req.Notes,
			ChannelID: req.ChannelID,
			Status:    domain.TicketOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		doc.Tickets = append(doc.Tickets, ticket)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Ticket opened",
		slog.String("ticket_id", ticket.ID),
		slog.String("category", ticket.Category),
		slog.String("requester", req.Requester.String()))

	event := newEvent(domain.EventTicketOpened, ticket.ID, req.Requester, ticket.CreatedAt)
	event.To = string(ticket.Status)
	event.Payload = *ticket
	p.publisher.Publish(ctx, event)
	return ticket, nil
}

// GetTicket looks in the live collection first, then in closed tickets.
func (p *TicketProcessor) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var doc domain.TicketsDocument
	if err := p.store.Read(ctx, repository.CollectionTickets, &doc); err != nil {
		return nil, err
	}
	if _, ticket := doc.FindOpen(id); ticket != nil {
		return ticket, nil
	}
	if ticket := doc.FindClosed(id); ticket != nil {
		return ticket, nil
	}
	return nil, fmt.Errorf("%w: ticket %s", domain.ErrNotFound, id)
}

// ListTickets returns live tickets filtered by status. Asking for closed
// returns the closed collection.
func (p *TicketProcessor) ListTickets(ctx context.Context, status domain.TicketStatus) ([]*domain.Ticket, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validationf("unknown ticket status %q", status)
	}

	var doc domain.TicketsDocument
	if err := p.store.Read(ctx, repository.CollectionTickets, &doc); err != nil {
		return nil, err
	}
	switch status {
	case "":
		return doc.Tickets, nil
	case domain.TicketClosed:
		return doc.ClosedTickets, nil
	}

	result := make([]*domain.Ticket, 0, len(doc.Tickets))
	for _, ticket := range doc.Tickets {
		if ticket.Status == status {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (p *TicketProcessor) UpdateTicket(ctx context.Context, id string, update domain.TicketUpdate) (*domain.Ticket, error) {
	if update.Empty() {
		return nil, domain.Validationf("no fields to update")
	}

	var updated *domain.Ticket
	err := p.mutate(ctx, id, "edit", func(t *domain.Ticket) error {
		update.Apply(t)
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Ticket updated", slog.String("ticket_id", id))
	return updated, nil
}

// MarkSold moves an open ticket to sold and appends the sale to the
// statistics ledger. The two writes are independent: if the ledger write
// fails the ticket stays sold and the gap is logged for reconciliation.
func (p *TicketProcessor) MarkSold(ctx context.Context, id string, req SaleRequest) (*domain.Ticket, error) {
	price, err := validator.ParsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Buyer) == "" {
		return nil, domain.Validationf("buyer is required")
	}

	var sold *domain.Ticket
	err = p.mutate(ctx, id, "mark sold", func(t *domain.Ticket) error {
		if !t.Status.CanTransition(domain.TicketSold) {
			return p.invalid(t, "mark sold")
		}
		t.Status = domain.TicketSold
		t.Sale = &domain.Sale{
			Buyer:  req.Buyer,
			Price:  price,
			Seller: req.Seller.String(),
			SoldAt: p.now(),
		}
		sold = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.stateChanged(ctx, sold, domain.TicketOpen, req.Seller)

	entry := domain.SaleEntry{
		TicketID: sold.ID,
		Price:    price,
		Buyer:    req.Buyer,
		Seller:   sold.Sale.Seller,
		Rank:     sold.Category,
	}
	if err := p.sales.RecordSale(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "Ticket sold but sale ledger write failed, reconciliation required",
			slog.String("ticket_id", sold.ID),
			slog.String("price", price.String()),
			slog.String("error", err.Error()))
		return sold, fmt.Errorf("ticket %s marked sold but sale was not recorded: %w", sold.ID, err)
	}
	return sold, nil
}

func (p *TicketProcessor) MarkCompleted(ctx context.Context, id string, actor domain.Actor) (*domain.Ticket, error) {
	var completed *domain.Ticket
	err := p.mutate(ctx, id, "mark completed", func(t *domain.Ticket) error {
		if !t.Status.CanTransition(domain.TicketCompleted) {
			return p.invalid(t, "mark completed")
		}
		t.Status = domain.TicketCompleted
		completed = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.stateChanged(ctx, completed, domain.TicketSold, actor)
	return completed, nil
}

// CloseTicket moves the ticket to the closed collection. Closing a ticket
// that is already closed succeeds without changes.
func (p *TicketProcessor) CloseTicket(ctx context.Context, id string, actor domain.Actor) (*domain.Ticket, error) {
	var doc domain.TicketsDocument
	var closed *domain.Ticket
	var from domain.TicketStatus
	alreadyClosed := false

	err := p.store.Update(ctx, repository.CollectionTickets, &doc, func() error {
		i, ticket := doc.FindOpen(id)
		if ticket == nil {
			if existing := doc.FindClosed(id); existing != nil {
				closed = existing
				alreadyClosed = true
				return errNoChange
			}
			return fmt.Errorf("%w: ticket %s", domain.ErrNotFound, id)
		}

		now := p.now()
		from = ticket.Status
		ticket.FinalStatus = ticket.Status
		ticket.Status = domain.TicketClosed
		ticket.ClosedAt = &now
		ticket.ClosedBy = &actor
		ticket.UpdatedAt = now

		doc.Tickets = append(doc.Tickets[:i], doc.Tickets[i+1:]...)
		doc.ClosedTickets = append(doc.ClosedTickets, ticket)
		closed = ticket
		return nil
	})
	if alreadyClosed {
		return closed, nil
	}
	if err != nil {
		return nil, err
	}

	p.stateChanged(ctx, closed, from, actor)
	return closed, nil
}

// mutate applies fn to a live ticket. Closed tickets are immutable.
func (p *TicketProcessor) mutate(ctx context.Context, id, action string, fn func(*domain.Ticket) error) error {
	var doc domain.TicketsDocument
	return p.store.Update(ctx, repository.CollectionTickets, &doc, func() error {
		_, ticket := doc.FindOpen(id)
		if ticket == nil {
			if closed := doc.FindClosed(id); closed != nil {
				return p.invalid(closed, action)
			}
			return fmt.Errorf("%w: ticket %s", domain.ErrNotFound, id)
		}
		if err := fn(ticket); err != nil {
			return err
		}
		ticket.UpdatedAt = p.now()
		return nil
	})
}

func (p *TicketProcessor) invalid(t *domain.Ticket, action string) error {
	return &domain.TransitionError{Entity: "ticket", ID: t.ID, Current: string(t.Status), Action: action}
}

func (p *TicketProcessor) stateChanged(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus, actor domain.Actor) {
	p.logger.InfoContext(ctx, "Ticket state changed",
		slog.String("ticket_id", ticket.ID),
		slog.String("from", string(from)),
		slog.String("to", string(ticket.Status)),
		slog.String("actor", actor.String()))

	event := newEvent(domain.EventTicketStateChanged, ticket.ID, actor, ticket.UpdatedAt)
	event.From = string(from)
	event.To = string(ticket.Status)
	event.Payload = *ticket
	p.publisher.Publish(ctx, event)
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketOpen      TicketStatus = "open"
	TicketSold      TicketStatus = "sold"
	TicketCompleted TicketStatus = "completed"
	TicketClosed    TicketStatus = "closed"
)

// ticketEdges lists every legal transition. closed is terminal.
var ticketEdges = map[TicketStatus][]TicketStatus{
	TicketOpen:      {TicketSold, TicketClosed},
	TicketSold:      {TicketCompleted, TicketClosed},
	TicketCompleted: {TicketClosed},
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketSold, TicketCompleted, TicketClosed:
		return true
	}
	return false
}

func (s TicketStatus) CanTransition(to TicketStatus) bool {
	for _, next := range ticketEdges[s] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the states reachable in one step from s.
func (s TicketStatus) NextStatuses() []TicketStatus {
	return append([]TicketStatus(nil), ticketEdges[s]...)
}

type Sale struct {
	Buyer  string          `json:"buyer"`
	Price  decimal.Decimal `json:"price"`
	Seller string          `json:"seller"`
	SoldAt time.Time       `json:"sold_at"`
}

type Ticket struct {
	ID          string       `json:"id"`
	Requester   Actor        `json:"requester"`
	Category    string       `json:"category"`
	Payload     string       `json:"payload"`
	Notes       string       `json:"notes,omitempty"`
	ChannelID   string       `json:"channel_id,omitempty"`
	Status      TicketStatus `json:"status"`
	Sale        *Sale        `json:"sale,omitempty"`
	FinalStatus TicketStatus `json:"final_status,omitempty"`
	ClosedBy    *Actor       `json:"closed_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

type TicketUpdate struct {
	Payload *string `json:"payload,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

func (u TicketUpdate) Empty() bool {
	return u.Payload == nil && u.Notes == nil
}

func (u TicketUpdate) Apply(t *Ticket) {
	if u.Payload != nil {
		t.Payload = *u.Payload
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
}

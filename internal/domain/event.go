package domain

import (
	"time"
)

type EventType string

const (
	EventAccountCreated       EventType = "account_created"
	EventAccountStatusChanged EventType = "account_status_changed"
	EventAccountDeleted       EventType = "account_deleted"
	EventTicketOpened         EventType = "ticket_opened"
	EventTicketStateChanged   EventType = "ticket_state_changed"
	EventSaleRecorded         EventType = "sale_recorded"
	EventPurchaseRecorded     EventType = "purchase_recorded"
	EventStatsReset           EventType = "stats_reset"
)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	EntityID  string    `json:"entity_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Actor     Actor     `json:"actor"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

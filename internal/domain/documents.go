package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountsDocument is the persisted shape of the accounts collection.
type AccountsDocument struct {
	Accounts []*Account        `json:"accounts"`
	Backup   []AccountSnapshot `json:"backup"`
	Sequence int               `json:"sequence"`
}

func (d *AccountsDocument) Reset() {
	*d = AccountsDocument{
		Accounts: []*Account{},
		Backup:   []AccountSnapshot{},
	}
}

func (d *AccountsDocument) Normalize() {
	if d.Accounts == nil {
		d.Accounts = []*Account{}
	}
	if d.Backup == nil {
		d.Backup = []AccountSnapshot{}
	}
}

// NextID allocates the next account id. Ids are never reused: the high-water
// mark covers deleted accounts through the backup trail.
func (d *AccountsDocument) NextID() string {
	high := d.Sequence
	for _, a := range d.Accounts {
		if n, ok := ParseSeq(AccountIDPrefix, a.ID); ok && n > high {
			high = n
		}
	}
	for _, s := range d.Backup {
		if n, ok := ParseSeq(AccountIDPrefix, s.ID); ok && n > high {
			high = n
		}
	}
	d.Sequence = high + 1
	return FormatID(AccountIDPrefix, d.Sequence)
}

func (d *AccountsDocument) Find(id string) (int, *Account) {
	for i, a := range d.Accounts {
		if a.ID == id {
			return i, a
		}
	}
	return -1, nil
}

// TicketsDocument is the persisted shape of the tickets collection.
type TicketsDocument struct {
	Tickets       []*Ticket `json:"tickets"`
	ClosedTickets []*Ticket `json:"closed_tickets"`
	Sequence      int       `json:"sequence"`
}

func (d *TicketsDocument) Reset() {
	*d = TicketsDocument{
		Tickets:       []*Ticket{},
		ClosedTickets: []*Ticket{},
	}
}

func (d *TicketsDocument) Normalize() {
	if d.Tickets == nil {
		d.Tickets = []*Ticket{}
	}
	if d.ClosedTickets == nil {
		d.ClosedTickets = []*Ticket{}
	}
}

func (d *TicketsDocument) NextID() string {
	high := d.Sequence
	for _, list := range [][]*Ticket{d.Tickets, d.ClosedTickets} {
		for _, t := range list {
			if n, ok := ParseSeq(TicketIDPrefix, t.ID); ok && n > high {
				high = n
			}
		}
	}
	d.Sequence = high + 1
	return FormatID(TicketIDPrefix, d.Sequence)
}

func (d *TicketsDocument) FindOpen(id string) (int, *Ticket) {
	for i, t := range d.Tickets {
		if t.ID == id {
			return i, t
		}
	}
	return -1, nil
}

func (d *TicketsDocument) FindClosed(id string) *Ticket {
	for _, t := range d.ClosedTickets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// StatsDocument is the persisted shape of the stats collection. The running
// totals and buckets are maintained on every append; the logs are authoritative.
type StatsDocument struct {
	TotalSales        int                `json:"total_sales"`
	TotalRevenue      decimal.Decimal    `json:"total_revenue"`
	TotalPurchaseCost decimal.Decimal    `json:"total_purchase_cost"`
	AccountsSold      []SaleEntry        `json:"accounts_sold"`
	Purchases         []PurchaseEntry    `json:"purchases"`
	DailyStats        map[string]*Bucket `json:"daily_stats"`
	SellerStats       map[string]*Bucket `json:"seller_stats"`
	RankStats         map[string]*Bucket `json:"rank_stats"`
	// ResetAt is when the statistics were last wiped. Sales made at or before
	// it are intentionally absent from the log.
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

func (d *StatsDocument) Reset() {
	*d = StatsDocument{
		AccountsSold: []SaleEntry{},
		Purchases:    []PurchaseEntry{},
		DailyStats:   map[string]*Bucket{},
		SellerStats:  map[string]*Bucket{},
		RankStats:    map[string]*Bucket{},
	}
}

func (d *StatsDocument) Normalize() {
	if d.AccountsSold == nil {
		d.AccountsSold = []SaleEntry{}
	}
	if d.Purchases == nil {
		d.Purchases = []PurchaseEntry{}
	}
	if d.DailyStats == nil {
		d.DailyStats = map[string]*Bucket{}
	}
	if d.SellerStats == nil {
		d.SellerStats = map[string]*Bucket{}
	}
	if d.RankStats == nil {
		d.RankStats = map[string]*Bucket{}
	}
}

// ClearedByReset reports whether a sale made at soldAt was wiped by the last
// reset.
func (d *StatsDocument) ClearedByReset(soldAt time.Time) bool {
	return d.ResetAt != nil && !soldAt.After(*d.ResetAt)
}

func (d *StatsDocument) HasSaleForTicket(ticketID string) bool {
	for _, e := range d.AccountsSold {
		if e.TicketID == ticketID {
			return true
		}
	}
	return false
}

// ConfigDocument holds cross-restart pointers for the presentation layer.
type ConfigDocument map[string]string

const (
	ConfigStatsChannelID = "stats_channel_id"
	ConfigStatsMessageID = "stats_message_id"
)

func (d *ConfigDocument) Reset() {
	*d = ConfigDocument{}
}

func (d *ConfigDocument) Normalize() {
	if *d == nil {
		*d = ConfigDocument{}
	}
}

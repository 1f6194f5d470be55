package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleEntry struct {
	TicketID string          `json:"ticket_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Buyer    string          `json:"buyer"`
	Seller   string          `json:"seller"`
	Rank     string          `json:"rank"`
	Date     time.Time       `json:"date"`
}

type PurchaseEntry struct {
	ID       string          `json:"id"`
	Quantity int             `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
	Source   string          `json:"source"`
	Date     time.Time       `json:"date"`
}

type Bucket struct {
	Sales   int             `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

func (b *Bucket) Add(price decimal.Decimal) {
	b.Sales++
	b.Revenue = b.Revenue.Add(price)
}

type RankedBucket struct {
	Name string `json:"name"`
	Bucket
}

type Summary struct {
	TotalSales        int             `json:"total_sales"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalPurchaseCost decimal.Decimal `json:"total_purchase_cost"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	Today             string          `json:"today"`
	DailyToday        Bucket          `json:"daily_today"`
	TopSellers        []RankedBucket  `json:"top_sellers"`
	TopRanks          []RankedBucket  `json:"top_ranks"`
	RecentSales       []SaleEntry     `json:"recent_sales"`
	RecentPurchases   []PurchaseEntry `json:"recent_purchases"`
}

type ProfitSplit struct {
	People            int             `json:"people"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalPurchaseCost decimal.Decimal `json:"total_purchase_cost"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	PerPerson         decimal.Decimal `json:"per_person"`
}

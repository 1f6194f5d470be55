package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	dayLayout          = "2006-01-02"
	unknownName        = "Unknown"
	topLimit           = 5
	recentSalesLimit   = 5
	recentPurchasesLen = 3

	DefaultResetTTL = 2 * time.Minute
)

type PurchaseRequest struct {
	Quantity int
	Cost     decimal.Decimal
	Source   string
	Actor    domain.Actor
}

// ResetChallenge is the first half of the two-step reset. The token must be
// presented to ConfirmReset before it expires.
type ResetChallenge struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type pendingReset struct {
	actor     domain.Actor
	expiresAt time.Time
}

type StatsLedger struct {
	store     repository.LedgerStore
	publisher EventPublisher
	now       func() time.Time
	location  *time.Location
	logger    *slog.Logger
	resetTTL  time.Duration

	mu     sync.Mutex
	resets map[string]pendingReset
}

func NewStatsLedger(store repository.LedgerStore, resetTTL time.Duration, opts Options) *StatsLedger {
	opts = opts.withDefaults()
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &StatsLedger{
		store:     store,
		publisher: opts.Publisher,
		now:       opts.Now,
		location:  opts.Location,
		logger:    opts.Logger,
		resetTTL:  resetTTL,
		resets:    make(map[string]pendingReset),
	}
}

// RecordSale appends a sale and updates totals and the daily, seller and
// rank buckets in a single write. The entry is dated at append time.
func (l *StatsLedger) RecordSale(ctx context.Context, entry domain.SaleEntry) error {
	if entry.Price.IsNegative() {
		return domain.Validationf("price must not be negative")
	}
	entry.Seller = orUnknown(entry.Seller)
	entry.Rank = orUnknown(entry.Rank)
	entry.Date = l.now()

	var doc domain.StatsDocument
	err := l.store.Update(ctx, repository.CollectionStats, &doc, func() error {
		applySale(&doc, entry, l.dayKey(entry.Date))
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "Sale recorded",
		slog.String("ticket_id", entry.TicketID),
		slog.String("price", entry.Price.String()),
		slog.String("seller", entry.Seller),
		slog.String("rank", entry.Rank))

	event := newEvent(domain.EventSaleRecorded, entry.TicketID, domain.Actor{Name: entry.Seller}, entry.Date)
	event.Payload = entry
	l.publisher.Publish(ctx, event)
	return nil
}

func (l *StatsLedger) RecordPurchase(ctx context.Context, req PurchaseRequest) (*domain.PurchaseEntry, error) {
	if req.Quantity <= 0 {
		return nil, domain.Validationf("quantity must be a positive integer, got %d", req.Quantity)
	}
	if req.Cost.IsNegative() {
		return nil, domain.Validationf("cost must not be negative")
	}

	var doc domain.StatsDocument
	var entry domain.PurchaseEntry
	err := l.store.Update(ctx, repository.CollectionStats, &doc, func() error {
		entry = domain.PurchaseEntry{
			ID:       nextPurchaseID(doc.Purchases),
			Quantity: req.Quantity,
			Cost:     req.Cost,
			Source:   orUnknown(req.Source),
			Date:     l.now(),
		}
		doc.Purchases = append(doc.Purchases, entry)
		doc.TotalPurchaseCost = doc.TotalPurchaseCost.Add(entry.Cost)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Purchase recorded",
		slog.String("purchase_id", entry.ID),
		slog.Int("quantity", entry.Quantity),
		slog.String("cost", entry.Cost.String()))

	event := newEvent(domain.EventPurchaseRecorded, entry.ID, req.Actor, entry.Date)
	event.Payload = entry
	l.publisher.Publish(ctx, event)
	return &entry, nil
}

func (l *StatsLedger) ComputeSummary(ctx context.Context) (*domain.Summary, error) {
	var doc domain.StatsDocument
	if err := l.store.Read(ctx, repository.CollectionStats, &doc); err != nil {
		return nil, err
	}

	summary := Summarize(&doc, l.location, l.now())
	if drift := totalsDrift(&doc, summary); drift != "" {
		l.logger.WarnContext(ctx, "Running totals differ from ledger replay",
			slog.String("drift", drift))
	}
	return &summary, nil
}

func (l *StatsLedger) SplitProfit(ctx context.Context, people int) (*domain.ProfitSplit, error) {
	if people <= 0 {
		return nil, domain.Validationf("number of people must be positive, got %d", people)
	}

	summary, err := l.ComputeSummary(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.ProfitSplit{
		People:            people,
		TotalRevenue:      summary.TotalRevenue,
		TotalPurchaseCost: summary.TotalPurchaseCost,
		NetProfit:         summary.NetProfit,
		PerPerson:         summary.NetProfit.Div(decimal.NewFromInt(int64(people))),
	}, nil
}

// RequestReset starts the two-step reset and returns the confirmation token.
func (l *StatsLedger) RequestReset(ctx context.Context, actor domain.Actor) (ResetChallenge, error) {
	if actor.ID == "" {
		return ResetChallenge{}, domain.Validationf("reset requires an identified actor")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for token, pending := range l.resets {
		if now.After(pending.expiresAt) {
			delete(l.resets, token)
		}
	}

	challenge := ResetChallenge{
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(l.resetTTL),
	}
	l.resets[challenge.Token] = pendingReset{actor: actor, expiresAt: challenge.ExpiresAt}

	l.logger.WarnContext(ctx, "Statistics reset requested",
		slog.String("actor", actor.String()),
		slog.Time("expires_at", challenge.ExpiresAt))
	return challenge, nil
}

// ConfirmReset replaces the statistics document with its empty default and
// stamps the reset time so reconciliation does not restore wiped sales.
// Tokens are single use and bound to the requesting actor.
func (l *StatsLedger) ConfirmReset(ctx context.Context, token string, actor domain.Actor) error {
	l.mu.Lock()
	pending, ok := l.resets[token]
	if ok {
		delete(l.resets, token)
	}
	l.mu.Unlock()

	if !ok || l.now().After(pending.expiresAt) {
		return domain.Validationf("reset confirmation token is invalid or expired")
	}
	if pending.actor.ID != actor.ID {
		return domain.Validationf("reset must be confirmed by the actor who requested it")
	}

	now := l.now()
	var doc domain.StatsDocument
	doc.Reset()
	doc.ResetAt = &now
	if err := l.store.Write(ctx, repository.CollectionStats, &doc); err != nil {
		return err
	}

	l.logger.WarnContext(ctx, "Statistics reset", slog.String("actor", actor.String()))
	l.publisher.Publish(ctx, newEvent(domain.EventStatsReset, "", actor, now))
	return nil
}

func (l *StatsLedger) dayKey(t time.Time) string {
	return t.In(l.location).Format(dayLayout)
}

// Summarize replays the sale and purchase logs. It is a pure function of
// the document, the location and the current time.
func Summarize(doc *domain.StatsDocument, loc *time.Location, now time.Time) domain.Summary {
	today := now.In(loc).Format(dayLayout)
	summary := domain.Summary{
		Today:           today,
		RecentSales:     []domain.SaleEntry{},
		RecentPurchases: []domain.PurchaseEntry{},
	}

	sellers := newRanking()
	ranks := newRanking()
	for _, sale := range doc.AccountsSold {
		summary.TotalSales++
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.Price)
		if sale.Date.In(loc).Format(dayLayout) == today {
			summary.DailyToday.Add(sale.Price)
		}
		sellers.add(orUnknown(sale.Seller), sale.Price)
		ranks.add(orUnknown(sale.Rank), sale.Price)
	}
	for _, purchase := range doc.Purchases {
		summary.TotalPurchaseCost = summary.TotalPurchaseCost.Add(purchase.Cost)
	}
	summary.NetProfit = summary.TotalRevenue.Sub(summary.TotalPurchaseCost)
	summary.TopSellers = sellers.top(topLimit)
	summary.TopRanks = ranks.top(topLimit)

	for i := len(doc.AccountsSold) - 1; i >= 0 && len(summary.RecentSales) < recentSalesLimit; i-- {
		summary.RecentSales = append(summary.RecentSales, doc.AccountsSold[i])
	}
	for i := len(doc.Purchases) - 1; i >= 0 && len(summary.RecentPurchases) < recentPurchasesLen; i-- {
		summary.RecentPurchases = append(summary.RecentPurchases, doc.Purchases[i])
	}
	return summary
}

// ranking keeps buckets in order of first appearance so a stable sort breaks
// ties by that order.
type ranking struct {
	index   map[string]int
	buckets []domain.RankedBucket
}

func newRanking() *ranking {
	return &ranking{index: make(map[string]int)}
}

func (r *ranking) add(name string, price decimal.Decimal) {
	i, ok := r.index[name]
	if !ok {
		i = len(r.buckets)
		r.index[name] = i
		r.buckets = append(r.buckets, domain.RankedBucket{Name: name})
	}
	r.buckets[i].Add(price)
}

func (r *ranking) top(n int) []domain.RankedBucket {
	sorted := append([]domain.RankedBucket(nil), r.buckets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sales > sorted[j].Sales
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []domain.RankedBucket{}
	}
	return sorted
}

func applySale(doc *domain.StatsDocument, entry domain.SaleEntry, day string) {
	doc.AccountsSold = append(doc.AccountsSold, entry)
	doc.TotalSales++
	doc.TotalRevenue = doc.TotalRevenue.Add(entry.Price)
	bucket(doc.DailyStats, day).Add(entry.Price)
	bucket(doc.SellerStats, entry.Seller).Add(entry.Price)
	bucket(doc.RankStats, entry.Rank).Add(entry.Price)
}

// rebuildTotals recomputes the running totals and buckets from the logs.
func rebuildTotals(doc *domain.StatsDocument, loc *time.Location) {
	sales := doc.AccountsSold
	doc.AccountsSold = make([]domain.SaleEntry, 0, len(sales))
	doc.TotalSales = 0
	doc.TotalRevenue = decimal.Zero
	doc.DailyStats = map[string]*domain.Bucket{}
	doc.SellerStats = map[string]*domain.Bucket{}
	doc.RankStats = map[string]*domain.Bucket{}
	for _, sale := range sales {
		applySale(doc, sale, sale.Date.In(loc).Format(dayLayout))
	}

	doc.TotalPurchaseCost = decimal.Zero
	for _, purchase := range doc.Purchases {
		doc.TotalPurchaseCost = doc.TotalPurchaseCost.Add(purchase.Cost)
	}
}

func totalsDrift(doc *domain.StatsDocument, replay domain.Summary) string {
	var parts []string
	if doc.TotalSales != replay.TotalSales {
		parts = append(parts, fmt.Sprintf("total_sales %d != %d", doc.TotalSales, replay.TotalSales))
	}
	if !doc.TotalRevenue.Equal(replay.TotalRevenue) {
		parts = append(parts, fmt.Sprintf("total_revenue %s != %s", doc.TotalRevenue, replay.TotalRevenue))
	}
	if !doc.TotalPurchaseCost.Equal(replay.TotalPurchaseCost) {
		parts = append(parts, fmt.Sprintf("total_purchase_cost %s != %s", doc.TotalPurchaseCost, replay.TotalPurchaseCost))
	}
	return strings.Join(parts, "; ")
}

func bucket(m map[string]*domain.Bucket, key string) *domain.Bucket {
	b, ok := m[key]
	if !ok {
		b = &domain.Bucket{}
		m[key] = b
	}
	return b
}

func nextPurchaseID(purchases []domain.PurchaseEntry) string {
	high := 0
	for _, p := range purchases {
		if n, ok := domain.ParseSeq(domain.PurchaseIDPrefix, p.ID); ok && n > high {
			high = n
		}
	}
	if len(purchases) > high {
		high = len(purchases)
	}
	return domain.FormatID(domain.PurchaseIDPrefix, high+1)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownName
	}
	return s
}

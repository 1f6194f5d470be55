package processor

import (
	"context"
	"fmt"
	"testing"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
	"trade_desk/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sale(price, seller, rank string) domain.SaleEntry {
	return domain.SaleEntry{Price: decimal.RequireFromString(price), Buyer: "buyer", Seller: seller, Rank: rank}
}

func TestSummaryTotalsMatchRecordedSales(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	prices := []string{"10", "20.25", "0.10", "99.99", "5"}

	want := decimal.Zero
	for _, p := range prices {
		require.NoError(t, h.stats.RecordSale(ctx, sale(p, "alice", "gold")))
		want = want.Add(decimal.RequireFromString(p))
	}

	first, err := h.stats.ComputeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(prices), first.TotalSales)
	assert.True(t, first.TotalRevenue.Equal(want), "got %s want %s", first.TotalRevenue, want)
	assert.True(t, first.NetProfit.Equal(want))

	second, err := h.stats.ComputeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	doc := h.statsDoc(t)
	assert.Equal(t, len(prices), doc.TotalSales)
	assert.True(t, doc.TotalRevenue.Equal(want))
	assert.Equal(t, len(prices), doc.SellerStats["alice"].Sales)
	assert.Equal(t, len(prices), doc.RankStats["gold"].Sales)
}

func TestSummaryReplaysLogsOverStoredTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.stats.RecordSale(ctx, sale("10", "alice", "gold")))

	var doc domain.StatsDocument
	require.NoError(t, h.store.Update(ctx, repository.CollectionStats, &doc, func() error {
		doc.TotalSales = 7
		doc.TotalRevenue = decimal.NewFromInt(1000)
		return nil
	}))

	summary, err := h.stats.ComputeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalSales)
	assert.True(t, summary.TotalRevenue.Equal(decimal.NewFromInt(10)))
}

func TestDailyBucketUsesLedgerTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	h := newHarnessWith(t, memory.NewStore(), loc)
	ctx := context.Background()

	// 22:30 UTC is already the next day at UTC+3.
	h.clock.Advance(10*time.Hour + 30*time.Minute)
	require.NoError(t, h.stats.RecordSale(ctx, sale("12", "alice", "gold")))

	doc := h.statsDoc(t)
	require.Contains(t, doc.DailyStats, "2024-05-02")
	assert.Equal(t, 1, doc.DailyStats["2024-05-02"].Sales)

	summary, err := h.stats.ComputeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", summary.Today)
	assert.Equal(t, 1, summary.DailyToday.Sales)

	h.clock.Advance(24 * time.Hour)
	summary, err = h.stats.ComputeSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DailyToday.Sales)
	assert.Equal(t, 1, summary.TotalSales)
}

func TestTopRankingsAndRecentLists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entries := []domain.SaleEntry{
		sale("1", "carol", "bronze"),
		sale("2", "alice", "gold"),
		sale("3", "bob", "silver"),
		sale("4", "alice", "gold"),
		sale("5", "", ""),
		sale("6", "dave", "platinum"),
		sale("7", "erin", "diamond"),
	}
	for _, e := range entries {
		h.clock.Advance(time.Minute)
		require.NoError(t, h.stats.RecordSale(ctx, e))
	}
	for i := 1; i <= 4; i++ {
		_, err := h.stats.RecordPurchase(ctx, PurchaseRequest{Quantity: i, Cost: decimal.NewFromInt(1), Source: "shop"})
		require.NoError(t, err)
	}

	summary, err := h.stats.ComputeSummary(ctx)
	require.NoError(t, err)

	names := func(buckets []domain.RankedBucket) []string {
		out := []string{}
		for _, b := range buckets {
			out = append(out, b.Name)
		}
		return out
	}
	// alice leads; ties keep first-appearance order.
	assert.Equal(t, []string{"alice", "carol", "bob", "Unknown", "dave"}, names(summary.TopSellers))
	assert.Equal(t, []string{"gold", "bronze", "silver", "Unknown", "platinum"}, names(summary.TopRanks))
	assert.Equal(t, 2, summary.TopSellers[0].Sales)
	assert.True(t, summary.TopSellers[0].Revenue.Equal(decimal.NewFromInt(6)))

	require.Len(t, summary.RecentSales, 5)
	assert.Equal(t, "erin", summary.RecentSales[0].Seller)
	assert.Equal(t, "bob", summary.RecentSales[4].Seller)

	require.Len(t, summary.RecentPurchases, 3)
	assert.Equal(t, "PUR-0004", summary.RecentPurchases[0].ID)
	assert.Equal(t, "PUR-0002", summary.RecentPurchases[2].ID)

	assert.True(t, summary.TotalPurchaseCost.Equal(decimal.NewFromInt(4)))
	assert.True(t, summary.NetProfit.Equal(decimal.NewFromInt(24)))
}

func TestEmptySummary(t *testing.T) {
	h := newHarness(t)

	summary, err := h.stats.ComputeSummary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalSales)
	assert.True(t, summary.NetProfit.IsZero())
	assert.NotNil(t, summary.TopSellers)
	assert.NotNil(t, summary.RecentSales)
}

func TestRecordPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.stats.RecordPurchase(ctx, PurchaseRequest{Quantity: 10, Cost: decimal.RequireFromString("49.90")})
	require.NoError(t, err)
	assert.Equal(t, "PUR-0001", entry.ID)
	assert.Equal(t, "Unknown", entry.Source)

	_, err = h.stats.RecordPurchase(ctx, PurchaseRequest{Quantity: 0, Cost: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.stats.RecordPurchase(ctx, PurchaseRequest{Quantity: 1, Cost: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	doc := h.statsDoc(t)
	assert.Len(t, doc.Purchases, 1)
	assert.True(t, doc.TotalPurchaseCost.Equal(decimal.RequireFromString("49.9")))
}

func TestSplitProfit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.stats.RecordSale(ctx, sale("100", "alice", "gold")))
	_, err := h.stats.RecordPurchase(ctx, PurchaseRequest{Quantity: 1, Cost: decimal.RequireFromString("0.01")})
	require.NoError(t, err)

	for people := 1; people <= 7; people++ {
		split, err := h.stats.SplitProfit(ctx, people)
		require.NoError(t, err, "people=%d", people)
		product, _ := split.PerPerson.Mul(decimal.NewFromInt(int64(people))).Float64()
		net, _ := split.NetProfit.Float64()
		assert.InDelta(t, net, product, 1e-9, "people=%d", people)
	}

	before := h.statsDoc(t)
	for _, people := range []int{0, -3} {
		_, err := h.stats.SplitProfit(ctx, people)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Equal(t, before, h.statsDoc(t))
}

func TestTwoPhaseReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := domain.Actor{ID: "admin-1", Name: "admin"}
	require.NoError(t, h.stats.RecordSale(ctx, sale("10", "alice", "gold")))

	challenge, err := h.stats.RequestReset(ctx, admin)
	require.NoError(t, err)
	assert.NotEmpty(t, challenge.Token)
	assert.Equal(t, h.clock.Now().Add(time.Minute), challenge.ExpiresAt)
	assert.Len(t, h.statsDoc(t).AccountsSold, 1, "request alone must not clear anything")

	assert.ErrorIs(t, h.stats.ConfirmReset(ctx, "not-a-token", admin), domain.ErrValidation)

	require.NoError(t, h.stats.ConfirmReset(ctx, challenge.Token, admin))
	doc := h.statsDoc(t)
	assert.Empty(t, doc.AccountsSold)
	assert.Zero(t, doc.TotalSales)
	require.NotNil(t, doc.ResetAt)
	assert.True(t, doc.ResetAt.Equal(h.clock.Now()))

	assert.ErrorIs(t, h.stats.ConfirmReset(ctx, challenge.Token, admin), domain.ErrValidation, "tokens are single use")
	assert.Contains(t, h.publisher.types(), domain.EventStatsReset)
}

func TestResetTokenBoundToActorAndExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := domain.Actor{ID: "admin-1"}
	require.NoError(t, h.stats.RecordSale(ctx, sale("10", "alice", "gold")))

	challenge, err := h.stats.RequestReset(ctx, admin)
	require.NoError(t, err)
	assert.ErrorIs(t, h.stats.ConfirmReset(ctx, challenge.Token, domain.Actor{ID: "intruder"}), domain.ErrValidation)

	challenge, err = h.stats.RequestReset(ctx, admin)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, h.stats.ConfirmReset(ctx, challenge.Token, admin), domain.ErrValidation)

	assert.Len(t, h.statsDoc(t).AccountsSold, 1)
}

func TestResetRequiresIdentifiedActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.stats.RecordSale(ctx, sale("10", "alice", "gold")))

	_, err := h.stats.RequestReset(ctx, domain.Actor{Name: "anonymous"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	challenge, err := h.stats.RequestReset(ctx, domain.Actor{ID: "admin-1"})
	require.NoError(t, err)
	assert.ErrorIs(t, h.stats.ConfirmReset(ctx, challenge.Token, domain.Actor{}), domain.ErrValidation)
	assert.Len(t, h.statsDoc(t).AccountsSold, 1)
}

func TestSummarizeIsPure(t *testing.T) {
	var doc domain.StatsDocument
	doc.Reset()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		doc.AccountsSold = append(doc.AccountsSold, domain.SaleEntry{
			Price:  decimal.NewFromInt(int64(i + 1)),
			Seller: fmt.Sprintf("s%d", i),
			Rank:   "gold",
			Date:   now,
		})
	}

	a := Summarize(&doc, time.UTC, now)
	b := Summarize(&doc, time.UTC, now)
	assert.Equal(t, a, b)
	assert.Equal(t, 3, a.DailyToday.Sales)
	assert.Len(t, doc.AccountsSold, 3)
}

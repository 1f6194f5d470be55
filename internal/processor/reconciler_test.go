package processor

import (
	"context"
	"errors"
	"testing"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditCleanLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.openTicket(t, "gold")
	_, err := h.tickets.MarkSold(ctx, ticket.ID, SaleRequest{Buyer: "bob", Price: "10", Seller: seller})
	require.NoError(t, err)
	h.openTicket(t, "silver")

	report, err := h.reconciler.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.CheckedTickets)
}

func TestRepairAppendsMissingSales(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket := h.openTicket(t, "gold")
	h.store.FailNextWrite(repository.CollectionStats, errors.New("disk full"))
	sold, err := h.tickets.MarkSold(ctx, ticket.ID, SaleRequest{Buyer: "bob", Price: "30", Seller: seller})
	require.Error(t, err)

	// The gap survives closing the ticket.
	_, err = h.tickets.CloseTicket(ctx, ticket.ID, seller)
	require.NoError(t, err)

	other := h.openTicket(t, "silver")
	_, err = h.tickets.MarkSold(ctx, other.ID, SaleRequest{Buyer: "eve", Price: "5", Seller: seller})
	require.NoError(t, err)

	report, err := h.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	require.Len(t, report.MissingSales, 1)
	assert.Equal(t, domain.TicketClosed, report.MissingSales[0].Status)

	doc := h.statsDoc(t)
	require.Len(t, doc.AccountsSold, 2)
	assert.Equal(t, 2, doc.TotalSales)
	assert.True(t, doc.TotalRevenue.Equal(decimal.NewFromInt(35)))
	assert.True(t, doc.HasSaleForTicket(ticket.ID))
	assert.True(t, doc.AccountsSold[1].Date.Equal(sold.Sale.SoldAt))
	assert.Equal(t, "gold", doc.AccountsSold[1].Rank)

	again, err := h.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.True(t, again.Clean())
	assert.Zero(t, again.Repaired)
	assert.Len(t, h.statsDoc(t).AccountsSold, 2)
}

func TestRepairDoesNotUndoReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := domain.Actor{ID: "admin-1"}

	ticket := h.openTicket(t, "gold")
	_, err := h.tickets.MarkSold(ctx, ticket.ID, SaleRequest{Buyer: "bob", Price: "100", Seller: seller})
	require.NoError(t, err)

	challenge, err := h.stats.RequestReset(ctx, admin)
	require.NoError(t, err)
	require.NoError(t, h.stats.ConfirmReset(ctx, challenge.Token, admin))

	report, err := h.reconciler.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean(), "sales wiped by a reset are not gaps")

	repaired, err := h.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired.Repaired)
	doc := h.statsDoc(t)
	assert.Empty(t, doc.AccountsSold)
	assert.Zero(t, doc.TotalSales)
	assert.True(t, doc.TotalRevenue.IsZero())

	// A gap opened after the reset is still found.
	h.clock.Advance(time.Minute)
	later := h.openTicket(t, "silver")
	h.store.FailNextWrite(repository.CollectionStats, errors.New("disk full"))
	_, err = h.tickets.MarkSold(ctx, later.ID, SaleRequest{Buyer: "eve", Price: "5", Seller: seller})
	require.Error(t, err)

	repaired, err = h.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired.Repaired)
	require.Len(t, repaired.MissingSales, 1)
	assert.Equal(t, later.ID, repaired.MissingSales[0].TicketID)
	assert.Equal(t, 1, h.statsDoc(t).TotalSales)
}

func TestAuditReportsTotalsDrift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.stats.RecordSale(ctx, sale("10", "alice", "gold")))

	var doc domain.StatsDocument
	require.NoError(t, h.store.Update(ctx, repository.CollectionStats, &doc, func() error {
		doc.TotalSales = 4
		return nil
	}))

	report, err := h.reconciler.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Contains(t, report.TotalsDrift, "total_sales")

	repaired, err := h.reconciler.Repair(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired.Repaired)
	assert.Equal(t, 1, h.statsDoc(t).TotalSales)
}

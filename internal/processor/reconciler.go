package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
)

type MissingSale struct {
	TicketID string              `json:"ticket_id"`
	Status   domain.TicketStatus `json:"status"`
	Category string              `json:"category"`
	Sale     domain.Sale         `json:"sale"`
}

type ReconcileReport struct {
	CheckedTickets int           `json:"checked_tickets"`
	MissingSales   []MissingSale `json:"missing_sales"`
	TotalsDrift    string        `json:"totals_drift,omitempty"`
	Repaired       int           `json:"repaired"`
}

func (r *ReconcileReport) Clean() bool {
	return len(r.MissingSales) == 0 && r.TotalsDrift == ""
}

// Reconciler finds tickets that carry a sale without a matching ledger entry,
// the gap left when a crash separates the ticket write from the stats write.
// Sales made before the last statistics reset are not gaps.
type Reconciler struct {
	store    repository.LedgerStore
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
}

func NewReconciler(store repository.LedgerStore, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		store:    store,
		now:      opts.Now,
		location: opts.Location,
		logger:   opts.Logger,
	}
}

func (r *Reconciler) Audit(ctx context.Context) (*ReconcileReport, error) {
	var tickets domain.TicketsDocument
	if err := r.store.Read(ctx, repository.CollectionTickets, &tickets); err != nil {
		return nil, err
	}
	var stats domain.StatsDocument
	if err := r.store.Read(ctx, repository.CollectionStats, &stats); err != nil {
		return nil, err
	}

	report := r.audit(&tickets, &stats)
	r.log(ctx, report)
	return report, nil
}

// Repair appends the missing sale entries and rebuilds the running totals
// from the logs, all in one stats write.
func (r *Reconciler) Repair(ctx context.Context) (*ReconcileReport, error) {
	var tickets domain.TicketsDocument
	if err := r.store.Read(ctx, repository.CollectionTickets, &tickets); err != nil {
		return nil, err
	}

	var stats domain.StatsDocument
	var report *ReconcileReport
	err := r.store.Update(ctx, repository.CollectionStats, &stats, func() error {
		report = r.audit(&tickets, &stats)
		if report.Clean() {
			return errNoChange
		}
		for _, missing := range report.MissingSales {
			stats.AccountsSold = append(stats.AccountsSold, domain.SaleEntry{
				TicketID: missing.TicketID,
				Price:    missing.Sale.Price,
				Buyer:    missing.Sale.Buyer,
				Seller:   orUnknown(missing.Sale.Seller),
				Rank:     orUnknown(missing.Category),
				Date:     missing.Sale.SoldAt,
			})
		}
		rebuildTotals(&stats, r.location)
		report.Repaired = len(report.MissingSales)
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}

	r.log(ctx, report)
	return report, nil
}

func (r *Reconciler) audit(tickets *domain.TicketsDocument, stats *domain.StatsDocument) *ReconcileReport {
	report := &ReconcileReport{MissingSales: []MissingSale{}}
	for _, list := range [][]*domain.Ticket{tickets.Tickets, tickets.ClosedTickets} {
		for _, t := range list {
			report.CheckedTickets++
			if t.Sale == nil || stats.HasSaleForTicket(t.ID) || stats.ClearedByReset(t.Sale.SoldAt) {
				continue
			}
			report.MissingSales = append(report.MissingSales, MissingSale{
				TicketID: t.ID,
				Status:   t.Status,
				Category: t.Category,
				Sale:     *t.Sale,
			})
		}
	}
	report.TotalsDrift = totalsDrift(stats, Summarize(stats, r.location, r.now()))
	return report
}

func (r *Reconciler) log(ctx context.Context, report *ReconcileReport) {
	if report.Clean() {
		r.logger.InfoContext(ctx, "Reconciliation clean",
			slog.Int("checked_tickets", report.CheckedTickets))
		return
	}
	for _, missing := range report.MissingSales {
		r.logger.WarnContext(ctx, "Sold ticket without sale ledger entry",
			slog.String("ticket_id", missing.TicketID),
			slog.String("status", string(missing.Status)),
			slog.String("price", missing.Sale.Price.String()))
	}
	if report.TotalsDrift != "" {
		r.logger.WarnContext(ctx, "Statistics totals drift", slog.String("drift", report.TotalsDrift))
	}
}

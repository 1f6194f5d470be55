package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"trade_desk/internal/domain"
	"trade_desk/internal/processor"

	"github.com/spf13/cobra"
)

const resetConfirmWord = "reset"

var (
	reconcileRepair  bool
	accountsStatus   string
	ticketsStatus    string
	eventsLimit      int
	purchaseQuantity string
	purchaseCost     string
	purchaseSource   string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the statistics summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary domain.Summary
		if err := newClientFromFlags().do(cmd.Context(), http.MethodGet, "/api/v1/stats/summary", nil, nil, &summary); err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), &summary)
	},
}

var splitCmd = &cobra.Command{
	Use:   "split <people>",
	Short: "Split net profit evenly between people",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var split domain.ProfitSplit
		query := url.Values{"people": {args[0]}}
		if err := newClientFromFlags().do(cmd.Context(), http.MethodGet, "/api/v1/stats/split", query, nil, &split); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Revenue:     %s\n", split.TotalRevenue.StringFixed(2))
		fmt.Fprintf(w, "Purchases:   %s\n", split.TotalPurchaseCost.StringFixed(2))
		fmt.Fprintf(w, "Net profit:  %s\n", split.NetProfit.StringFixed(2))
		fmt.Fprintf(w, "Per person:  %s (x%d)\n", split.PerPerson.StringFixed(2), split.People)
		return nil
	},
}

var purchaseCmd = &cobra.Command{
	Use:   "purchase",
	Short: "Record a purchase of accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{
			"quantity": purchaseQuantity,
			"cost":     purchaseCost,
			"source":   purchaseSource,
		}
		var entry domain.PurchaseEntry
		if err := newClientFromFlags().do(cmd.Context(), http.MethodPost, "/api/v1/purchases", nil, body, &entry); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s: %d for %s\n", entry.ID, entry.Quantity, entry.Cost.StringFixed(2))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all statistics (asks for confirmation)",
	Long: `Clears every sale, purchase and aggregate. The server issues a short-lived
confirmation token; the reset only happens after you type "reset".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(cmd.Context(), newClientFromFlags(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Find sold tickets whose sale never reached the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		method, path := http.MethodGet, "/api/v1/reconcile"
		if reconcileRepair {
			method, path = http.MethodPost, "/api/v1/reconcile/repair"
		}
		var report processor.ReconcileReport
		if err := newClientFromFlags().do(cmd.Context(), method, path, nil, nil, &report); err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), &report)
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if accountsStatus != "" {
			query.Set("status", accountsStatus)
		}
		var accounts []domain.Account
		if err := newClientFromFlags().do(cmd.Context(), http.MethodGet, "/api/v1/accounts", query, nil, &accounts); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tLEVEL\tOPENED BY\tCREATED")
		for _, a := range accounts {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", a.ID, a.Status, a.Level, a.OpenedBy, a.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Print the account backup trail as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		var backup []domain.AccountSnapshot
		if err := newClientFromFlags().do(cmd.Context(), http.MethodGet, "/api/v1/accounts/backup", nil, nil, &backup); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), backup)
	},
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if ticketsStatus != "" {
			query.Set("status", ticketsStatus)
		}
		var tickets []domain.Ticket
		if err := newClientFromFlags().do(cmd.Context(), http.MethodGet, "/api/v1/tickets", query, nil, &tickets); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCATEGORY\tREQUESTER\tPRICE")
		for _, t := range tickets {
			price := "-"
			if t.Sale != nil {
				price = t.Sale.Price.StringFixed(2)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Category, t.Requester.String(), price)
		}
		return tw.Flush()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recent lifecycle events as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{"limit": {strconv.Itoa(eventsLimit)}}
		var events []domain.Event
		if err := newClientFromFlags().do(cmd.Context(), http.MethodGet, "/api/v1/events", query, nil, &events); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), events)
	},
}

func init() {
	purchaseCmd.Flags().StringVar(&purchaseQuantity, "quantity", "", "Number of accounts bought")
	purchaseCmd.Flags().StringVar(&purchaseCost, "cost", "", "Total cost")
	purchaseCmd.Flags().StringVar(&purchaseSource, "source", "", "Where the accounts came from")
	_ = purchaseCmd.MarkFlagRequired("quantity")
	_ = purchaseCmd.MarkFlagRequired("cost")

	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false, "Append the missing sale entries")
	accountsCmd.Flags().StringVar(&accountsStatus, "status", "", "Filter by status (not_finished, finished, banned)")
	ticketsCmd.Flags().StringVar(&ticketsStatus, "status", "", "Filter by status (open, sold, completed, closed)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum number of events")

	accountsCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(summaryCmd, splitCmd, purchaseCmd, resetCmd, reconcileCmd, accountsCmd, ticketsCmd, eventsCmd)
}

func runReset(ctx context.Context, c *client, in io.Reader, out io.Writer) error {
	var challenge processor.ResetChallenge
	if err := c.do(ctx, http.MethodPost, "/api/v1/stats/reset", nil, nil, &challenge); err != nil {
		return err
	}

	fmt.Fprintf(out, "This clears ALL sales, purchases and statistics.\n")
	fmt.Fprintf(out, "Type %q before %s to confirm: ", resetConfirmWord, challenge.ExpiresAt.Format("15:04:05"))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if strings.TrimSpace(line) != resetConfirmWord {
		fmt.Fprintln(out, "Reset cancelled.")
		return nil
	}

	body := map[string]string{"token": challenge.Token}
	if err := c.do(ctx, http.MethodPost, "/api/v1/stats/reset/confirm", nil, body, nil); err != nil {
		return err
	}
	fmt.Fprintln(out, "Statistics reset.")
	return nil
}

func printSummary(w io.Writer, s *domain.Summary) error {
	fmt.Fprintf(w, "Total sales:     %d\n", s.TotalSales)
	fmt.Fprintf(w, "Total revenue:   %s\n", s.TotalRevenue.StringFixed(2))
	fmt.Fprintf(w, "Purchase cost:   %s\n", s.TotalPurchaseCost.StringFixed(2))
	fmt.Fprintf(w, "Net profit:      %s\n", s.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Today (%s): %d sales, %s\n\n", s.Today, s.DailyToday.Sales, s.DailyToday.Revenue.StringFixed(2))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOP SELLER\tSALES\tREVENUE")
	for _, b := range s.TopSellers {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Sales, b.Revenue.StringFixed(2))
	}
	fmt.Fprintln(tw, "\t\t")
	fmt.Fprintln(tw, "TOP RANK\tSALES\tREVENUE")
	for _, b := range s.TopRanks {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Sales, b.Revenue.StringFixed(2))
	}
	return tw.Flush()
}

func printReport(w io.Writer, r *processor.ReconcileReport) error {
	fmt.Fprintf(w, "Checked %d tickets\n", r.CheckedTickets)
	if r.Clean() {
		fmt.Fprintln(w, "Ledger is consistent.")
		return nil
	}
	for _, m := range r.MissingSales {
		fmt.Fprintf(w, "  %s (%s) sold for %s to %s has no sale entry\n", m.TicketID, m.Status, m.Sale.Price.StringFixed(2), m.Sale.Buyer)
	}
	if r.TotalsDrift != "" {
		fmt.Fprintf(w, "Totals drift: %s\n", r.TotalsDrift)
	}
	if r.Repaired > 0 {
		fmt.Fprintf(w, "Repaired %d entries.\n", r.Repaired)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/history"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Browse the order history kept on this device",
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered orders, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		active, _ := cmd.Flags().GetBool("active")
		merchant, _ := cmd.Flags().GetString("merchant")
		days, _ := cmd.Flags().GetInt("days")

		var entries []history.Entry
		switch {
		case active:
			entries = current.orders.Active()
		case merchant != "":
			entries = current.orders.ByMerchant(merchant)
		case days > 0:
			entries = current.orders.Recent(days)
		default:
			entries = current.orders.All()
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No orders found")
			return nil
		}
		writeOrders(cmd.OutOrStdout(), entries)
		return nil
	},
}

func writeOrders(w io.Writer, entries []history.Entry) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ORDER\tMERCHANT\tSTATUS\tTOTAL\tPLACED\tTRACKING")
	for _, e := range entries {
		tracking := "on"
		if current.orders.IsTrackingExpired(e.OrderID) {
			tracking = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.OrderNumber, e.MerchantName, e.Status, e.Total.StringFixed(2),
			e.CreatedAt.Local().Format("2006-01-02 15:04"), tracking)
	}
	_ = tw.Flush()
}

var ordersStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the order history",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := current.orders.Statistics()
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Orders:     %d (%d active, %d completed, %d cancelled)\n",
			stats.TotalOrders, stats.ActiveOrders, stats.CompletedOrders, stats.CancelledOrders)
		fmt.Fprintf(out, "Spent:      %s\n", stats.TotalSpent.StringFixed(2))
		if stats.FavoriteMerchantSlug != "" {
			fmt.Fprintf(out, "Favourite:  %s (%d orders)\n", stats.FavoriteMerchantName, stats.FavoriteMerchantOrders)
		}
		return nil
	},
}

var ordersGroupedCmd = &cobra.Command{
	Use:   "grouped",
	Short: "List orders grouped by today, yesterday, last week and older",
	RunE: func(cmd *cobra.Command, args []string) error {
		groups := current.orders.GroupedByRecency()
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), groups)
		}
		out := cmd.OutOrStdout()
		for _, g := range []struct {
			title   string
			entries []history.Entry
		}{
			{"Today", groups.Today},
			{"Yesterday", groups.Yesterday},
			{"Last 7 days", groups.LastWeek},
			{"Older", groups.Older},
		} {
			if len(g.entries) == 0 {
				continue
			}
			fmt.Fprintf(out, "%s\n", g.title)
			writeOrders(out, g.entries)
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	ordersListCmd.Flags().Bool("active", false, "only orders still in progress")
	ordersListCmd.Flags().String("merchant", "", "only orders from this merchant slug")
	ordersListCmd.Flags().Int("days", 0, "only orders from the last N days")

	ordersCmd.AddCommand(ordersListCmd, ordersStatsCmd, ordersGroupedCmd)
	rootCmd.AddCommand(ordersCmd)
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/storeapi"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Inspect and change the eat or market cart",
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cart lines and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		vertical, err := verticalFlag(cmd)
		if err != nil {
			return err
		}
		summary, err := current.checkout.Summary(cmd.Context(), vertical)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), map[string]any{"summary": summary, "lines": cartLines(vertical)})
		}
		if summary.Merchant == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s cart is empty\n", vertical)
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s cart from %s (%s)\n\n", vertical, summary.Merchant.Name, summary.Merchant.Slug)
		tw := newTable(out)
		fmt.Fprintln(tw, "LINE\tITEM\tQTY\tPRICE")
		for _, l := range cartLines(vertical) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.LineID, l.Name, l.Qty, l.Price)
		}
		_ = tw.Flush()
		fmt.Fprintf(out, "\nSubtotal:     %s\n", summary.Subtotal.StringFixed(2))
		fmt.Fprintf(out, "Delivery fee: %s\n", summary.DeliveryFee.StringFixed(2))
		fmt.Fprintf(out, "Total:        %s\n", summary.Total.StringFixed(2))
		if summary.DeliverySlotID != "" {
			fmt.Fprintf(out, "Slot:         %s\n", summary.DeliverySlotID)
		}
		if summary.BelowMinimum {
			fmt.Fprintf(out, "Add %s more to reach the %s minimum.\n", summary.Shortfall.StringFixed(2), summary.Minimum.StringFixed(2))
		}
		return nil
	},
}

type lineView struct {
	LineID string `json:"line_id"`
	Name   string `json:"name"`
	Qty    string `json:"qty"`
	Price  string `json:"price"`
}

func cartLines(vertical enums.Vertical) []lineView {
	var lines []lineView
	if vertical == enums.VerticalMarket {
		for _, item := range current.market.Items() {
			qty := fmt.Sprintf("%d", item.Quantity)
			if !item.UnitType.IsPiece() && item.UnitQuantity != nil {
				qty = item.UnitQuantity.String() + " " + string(item.UnitType)
			}
			lines = append(lines, lineView{item.LineID, item.Name, qty, item.Price.StringFixed(2)})
		}
		return lines
	}
	for _, item := range current.eat.Items() {
		lines = append(lines, lineView{item.LineID, item.Name, fmt.Sprintf("%d", item.Quantity), item.Price.StringFixed(2)})
	}
	return lines
}

var cartAddCmd = &cobra.Command{
	Use:   "add <merchant-slug> <item-id>",
	Short: "Add a menu item to the cart",
	Long: `Add an item from a merchant's menu. The cart holds one merchant at a
time; pass --replace to empty a cart owned by another merchant first.

Examples:
  storefront cart add limon-grillhaus 1 --qty 2
  storefront cart add frische-ecke apples --vertical market --amount 0.5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		slug, itemID := args[0], args[1]
		qty, _ := cmd.Flags().GetInt("qty")
		replace, _ := cmd.Flags().GetBool("replace")
		note, _ := cmd.Flags().GetString("note")
		amount, _ := cmd.Flags().GetString("amount")

		menu, err := current.api.GetMenu(ctx, slug)
		if err != nil {
			return err
		}
		item, ok := menu.FindItem(itemID)
		if !ok {
			return fmt.Errorf("item %q is not on the %s menu", itemID, slug)
		}
		if !item.Available {
			return fmt.Errorf("%s is currently unavailable", item.Name)
		}
		merchant := merchantFrom(menu.Business)

		vertical := menu.Business.Vertical
		if vertical == "" {
			if vertical, err = verticalFlag(cmd); err != nil {
				return err
			}
		}
		added, conflict, err := addToCart(ctx, vertical, merchant, item, qty, amount, note, replace)
		if err != nil {
			return err
		}
		if conflict.HasConflict {
			return fmt.Errorf("your %s cart holds items from %s; rerun with --replace to start over", vertical, conflict.CurrentMerchantName)
		}
		if !added {
			return fmt.Errorf("item not added")
		}
		okf(cmd, "Added %s to the %s cart", item.Name, vertical)
		return nil
	},
}

func merchantFrom(b storeapi.Business) cart.Merchant {
	return cart.Merchant{
		ID:           b.ID,
		Name:         b.Name,
		Slug:         b.Slug,
		DeliveryFee:  b.DeliveryFee,
		MinimumOrder: b.MinimumOrder,
	}
}

func addToCart(ctx context.Context, vertical enums.Vertical, m cart.Merchant, item storeapi.MenuItem, qty int, amount, note string, replace bool) (bool, cart.Conflict, error) {
	switch vertical {
	case enums.VerticalMarket:
		line := cart.MarketItem{
			ItemID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: qty,
			UnitType: item.UnitType,
			Brand:    item.Brand,
			Barcode:  item.Barcode,
			ImageURL: item.ImageURL,
		}
		if strings.TrimSpace(amount) != "" {
			uq, err := decimal.NewFromString(amount)
			if err != nil {
				return false, cart.Conflict{}, fmt.Errorf("invalid --amount: %w", err)
			}
			line.UnitQuantity = &uq
		}
		if replace {
			return current.market.AddItemAfterClear(ctx, line, m), cart.Conflict{}, nil
		}
		if c := current.market.CheckConflict(m.ID); c.HasConflict {
			return false, c, nil
		}
		return current.market.AddItem(ctx, line, m), cart.Conflict{}, nil
	default:
		line := cart.Item{
			ItemID:              item.ID,
			Name:                item.Name,
			Price:               item.Price,
			Quantity:            qty,
			SpecialInstructions: note,
			ImageURL:            item.ImageURL,
		}
		if replace {
			return current.eat.AddItemAfterClear(ctx, line, m), cart.Conflict{}, nil
		}
		if c := current.eat.CheckConflict(m.ID); c.HasConflict {
			return false, c, nil
		}
		return current.eat.AddItem(ctx, line, m), cart.Conflict{}, nil
	}
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove <line-id>",
	Short: "Remove a cart line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vertical, err := verticalFlag(cmd)
		if err != nil {
			return err
		}
		var removed bool
		if vertical == enums.VerticalMarket {
			removed = current.market.RemoveItem(cmd.Context(), args[0])
		} else {
			removed = current.eat.RemoveItem(cmd.Context(), args[0])
		}
		if !removed {
			return fmt.Errorf("no line %s in the %s cart", args[0], vertical)
		}
		okf(cmd, "Removed %s", args[0])
		return nil
	},
}

var cartQtyCmd = &cobra.Command{
	Use:   "qty <line-id> <quantity>",
	Short: "Set a line's quantity; zero or less removes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vertical, err := verticalFlag(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if vertical == enums.VerticalMarket && strings.Contains(args[1], ".") {
			uq, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}
			if !current.market.UpdateUnitQuantity(ctx, args[0], uq) {
				return fmt.Errorf("no line %s in the market cart", args[0])
			}
			okf(cmd, "Updated %s", args[0])
			return nil
		}
		var qty int
		if _, err := fmt.Sscanf(args[1], "%d", &qty); err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		var ok bool
		if vertical == enums.VerticalMarket {
			ok = current.market.UpdateQuantity(ctx, args[0], qty)
		} else {
			ok = current.eat.UpdateQuantity(ctx, args[0], qty)
		}
		if !ok {
			return fmt.Errorf("no line %s in the %s cart", args[0], vertical)
		}
		okf(cmd, "Updated %s", args[0])
		return nil
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		vertical, err := verticalFlag(cmd)
		if err != nil {
			return err
		}
		if vertical == enums.VerticalMarket {
			current.market.Clear(cmd.Context())
		} else {
			current.eat.Clear(cmd.Context())
		}
		okf(cmd, "Cleared the %s cart", vertical)
		return nil
	},
}

var cartSlotCmd = &cobra.Command{
	Use:   "slot [slot-id]",
	Short: "Choose or clear the market cart's delivery slot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var slot *string
		if len(args) == 1 {
			slot = &args[0]
		}
		if !current.market.SetDeliverySlot(cmd.Context(), slot) {
			return fmt.Errorf("the market cart is empty; add an item before picking a slot")
		}
		if slot == nil {
			okf(cmd, "Delivery slot cleared")
		} else {
			okf(cmd, "Delivery slot set to %s", *slot)
		}
		return nil
	},
}

func verticalFlag(cmd *cobra.Command) (enums.Vertical, error) {
	raw, _ := cmd.Flags().GetString("vertical")
	return enums.ParseVertical(raw)
}

func init() {
	for _, c := range []*cobra.Command{cartShowCmd, cartAddCmd, cartRemoveCmd, cartQtyCmd, cartClearCmd} {
		c.Flags().String("vertical", string(enums.VerticalEat), "cart to use (eat or market)")
	}
	cartAddCmd.Flags().Int("qty", 1, "quantity")
	cartAddCmd.Flags().String("amount", "", "weight or volume for market items sold by unit")
	cartAddCmd.Flags().String("note", "", "special instructions for the kitchen")
	cartAddCmd.Flags().Bool("replace", false, "empty a cart owned by another merchant first")

	cartCmd.AddCommand(cartShowCmd, cartAddCmd, cartRemoveCmd, cartQtyCmd, cartClearCmd, cartSlotCmd)
	rootCmd.AddCommand(cartCmd)
}

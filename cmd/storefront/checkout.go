package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const defaultRetryWait = 3 * time.Second

var slotsCmd = &cobra.Command{
	Use:   "slots <merchant-slug>",
	Short: "List a market's delivery slots for a day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		slots, err := current.api.ListDeliverySlots(cmd.Context(), args[0], date)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), slots)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "SLOT\tFROM\tTO\tAVAILABLE")
		for _, s := range slots {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", s.ID, s.StartTime.Local().Format("15:04"), s.EndTime.Local().Format("15:04"), s.Available())
		}
		return tw.Flush()
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Place the order in the cart",
	Long: `Place the order held in the eat or market cart. Missing contact details
are taken from the remembered profile.

Example:
  storefront checkout --method pickup --payment cash`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		vertical, err := verticalFlag(cmd)
		if err != nil {
			return err
		}
		summary, err := current.checkout.Summary(ctx, vertical)
		if err != nil {
			return err
		}

		input := checkout.Input{
			CustomerName:    flagOr(cmd, "name", summary.Prefill.Name),
			CustomerPhone:   flagOr(cmd, "phone", summary.Prefill.Phone),
			CustomerEmail:   flagOr(cmd, "email", summary.Prefill.Email),
			DeliveryAddress: flagOr(cmd, "address", summary.Prefill.Address),
			Notes:           flagOr(cmd, "notes", ""),
		}
		if input.DeliveryMethod, err = enums.ParseDeliveryMethod(flagOr(cmd, "method", string(enums.DeliveryMethodDelivery))); err != nil {
			return err
		}
		if input.PaymentMethod, err = enums.ParsePaymentMethod(flagOr(cmd, "payment", string(enums.PaymentMethodCash))); err != nil {
			return err
		}

		attempt := current.checkout.NewAttempt(vertical)
		retries, _ := cmd.Flags().GetInt("retries")
		for {
			result, err := current.checkout.Submit(ctx, attempt, input)
			if err == nil {
				okf(cmd, "Order %s placed with %s, total %s", result.Order.OrderNumber, result.Entry.MerchantName, result.Entry.Total.StringFixed(2))
				return nil
			}
			wait, retryable := retryWait(err)
			if !retryable || retries <= 0 {
				return errors.New(checkout.FailureMessage(err))
			}
			retries--
			fmt.Fprintln(cmd.ErrOrStderr(), checkout.FailureMessage(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	},
}

// retryWait reports whether a failed submission may be retried with the same
// attempt and how long to wait first.
func retryWait(err error) (time.Duration, bool) {
	if !pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable {
		return 0, false
	}
	if wait := pkgerrors.RetryAfter(err); wait > 0 {
		return wait, true
	}
	return defaultRetryWait, true
}

func flagOr(cmd *cobra.Command, name, fallback string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fallback
}

func init() {
	slotsCmd.Flags().String("date", "", "day to list (YYYY-MM-DD), defaults to today")

	checkoutCmd.Flags().String("vertical", string(enums.VerticalEat), "cart to check out (eat or market)")
	checkoutCmd.Flags().String("name", "", "customer name")
	checkoutCmd.Flags().String("phone", "", "customer phone")
	checkoutCmd.Flags().String("email", "", "customer email")
	checkoutCmd.Flags().String("address", "", "delivery address")
	checkoutCmd.Flags().String("notes", "", "notes for the merchant")
	checkoutCmd.Flags().String("method", string(enums.DeliveryMethodDelivery), "delivery or pickup")
	checkoutCmd.Flags().String("payment", string(enums.PaymentMethodCash), "cash or card")
	checkoutCmd.Flags().Int("retries", 0, "resubmit the same attempt this many times after a retryable failure")

	rootCmd.AddCommand(slotsCmd, checkoutCmd)
}

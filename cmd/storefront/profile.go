package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the remembered contact details",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the remembered contact details",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, ok := current.profiles.Load(ctx)
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "No contact details stored")
			return nil
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), p)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:    %s\nPhone:   %s\nEmail:   %s\nAddress: %s\n", p.Name, p.Phone, p.Email, p.Address)
		if age, ok := current.profiles.AgeInDays(ctx); ok {
			fmt.Fprintf(out, "Saved %d day(s) ago, forgotten after %s\n", age, p.ExpiresAt.Local().Format("2006-01-02"))
		}
		return nil
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save or update contact details",
	Long: `Save contact details encrypted on this device. Only the flags you pass
are changed.

Example:
  storefront profile save --name "Ada Lovelace" --phone "+49 151 1234567"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields profile.Fields
		for flag, dst := range map[string]**string{
			"name":    &fields.Name,
			"phone":   &fields.Phone,
			"email":   &fields.Email,
			"address": &fields.Address,
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				*dst = &v
			}
		}
		if _, err := current.profiles.Save(cmd.Context(), fields); err != nil {
			return err
		}
		okf(cmd, "Contact details saved")
		return nil
	},
}

var profileClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the contact details",
	RunE: func(cmd *cobra.Command, args []string) error {
		current.profiles.Clear(cmd.Context())
		okf(cmd, "Contact details removed")
		return nil
	},
}

func init() {
	profileSaveCmd.Flags().String("name", "", "full name")
	profileSaveCmd.Flags().String("phone", "", "phone number")
	profileSaveCmd.Flags().String("email", "", "email address")
	profileSaveCmd.Flags().String("address", "", "delivery address")

	profileCmd.AddCommand(profileShowCmd, profileSaveCmd, profileClearCmd)
	rootCmd.AddCommand(profileCmd)
}

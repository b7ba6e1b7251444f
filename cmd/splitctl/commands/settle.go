package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gnan700/splitledger/internal/client"
)

// settle: record that one member paid another back.
func settleCmd() *cobra.Command {
	var (
		groupID, from, to, amount, description string
	)
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Record a settlement between two group members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			s, err := api.RecordSettlement(cmd.Context(), client.Settlement{
				GroupID:     groupID,
				FromUserID:  from,
				ToUserID:    to,
				Amount:      amt,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded settlement %s: %s\n", s.ID, s.Amount.StringFixed(2))
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "group id")
	cmd.Flags().StringVar(&from, "from", "", "id of the user paying")
	cmd.Flags().StringVar(&to, "to", "", "id of the user being paid")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&description, "description", "", "optional note")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

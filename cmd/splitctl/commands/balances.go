package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gnan700/splitledger/internal/client"
)

func balancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show balances for a group or a user",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "group <group-id>",
			Short: "Print every member's balance in a group",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				bs, err := api.GroupBalances(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printBalances(cmd.OutOrStdout(), bs)
			},
		},
		&cobra.Command{
			Use:   "user <user-id>",
			Short: "Print a user's balance in each of their groups",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				bs, err := api.UserBalances(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printBalances(cmd.OutOrStdout(), bs)
			},
		},
	)
	return cmd
}

func printBalances(out io.Writer, bs []client.Balance) error {
	if len(bs) == 0 {
		_, err := fmt.Fprintln(out, "no balances")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tUSER\tNET\tDETAIL")
	for _, b := range bs {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", b.GroupName, b.UserName, b.NetBalance.StringFixed(2))
		for _, c := range b.OwesTo {
			fmt.Fprintf(w, "\t\t\towes %s %s\n", c.UserName, c.Amount.StringFixed(2))
		}
		for _, c := range b.OwedBy {
			fmt.Fprintf(w, "\t\t\towed %s by %s\n", c.Amount.StringFixed(2), c.UserName)
		}
	}
	return w.Flush()
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnan700/splitledger/internal/client"
)

// seed: load the sample users, groups and expenses.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create sample users, groups and expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.Seed(cmd.Context(), api, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d groups, %d expenses\n",
				len(res.Users), len(res.Groups), res.Expenses)
			return nil
		},
	}
}

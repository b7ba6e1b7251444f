package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// health: poll the server until it is up or the retries run out.
func healthCmd() *cobra.Command {
	var (
		retries  int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Wait until the server answers its health check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			for attempt := 1; attempt <= retries; attempt++ {
				if err = api.Health(cmd.Context()); err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "server is up")
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "attempt %d/%d: %v\n", attempt, retries, err)
				if attempt < retries {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(interval):
					}
				}
			}
			return fmt.Errorf("server not healthy after %d attempts: %w", retries, err)
		},
	}
	cmd.Flags().IntVar(&retries, "retries", 30, "number of attempts")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "delay between attempts")
	return cmd
}

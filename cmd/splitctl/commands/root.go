package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/gnan700/splitledger/internal/client"
)

var (
	serverURL string
	timeout   time.Duration
	api       *client.HTTP
)

func Execute() error {
	root := &cobra.Command{
		Use:          "splitctl",
		Short:        "Command-line client for the splitledger API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			api = client.New(serverURL)
			api.HTTP = &http.Client{Timeout: timeout}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "splitledger base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")

	root.AddCommand(healthCmd(), seedCmd(), balancesCmd(), settleCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return root.ExecuteContext(ctx)
}

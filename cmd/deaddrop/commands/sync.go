package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Poll the relay for new messages and retry pending sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx := cmd.Context()

			fresh, err := client.FetchIncoming(ctx)
			if err != nil {
				return err
			}
			for _, msg := range fresh {
				printMessage(ctx, client, msg)
			}
			fmt.Printf("%d new message(s)\n", len(fresh))

			return client.RetryPending(ctx)
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local store and device key",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Printf("Store ready in %s\n", cfg.Home)
			if client.DeviceKeyDerived() {
				fmt.Println("Device key: derived from authenticator entropy")
			} else {
				fmt.Println("Device key: standard (run 'deaddrop upgrade' to derive one)")
			}
			return nil
		},
	}
}

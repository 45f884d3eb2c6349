package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	deaddrop "github.com/deaddrop/client-go"
)

func upgradeCmd() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Derive the device key from a passphrase",
		Long: "Replaces the random device key with one derived from a passphrase and\n" +
			"re-encrypts every stored record under it. The vault opens normally\n" +
			"afterwards; the passphrase is only needed to repeat the derivation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errors.New("passphrase required (-p)")
			}

			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if client.DeviceKeyDerived() {
				fmt.Println("device key is already derived")
				return nil
			}

			salt, err := deaddrop.GeneratePassphraseSalt()
			if err != nil {
				return err
			}
			auth, err := deaddrop.NewPassphraseAuthenticator(passphrase, salt)
			if err != nil {
				return err
			}
			if err := client.UpgradeDeviceKey(cmd.Context(), auth); err != nil {
				return err
			}
			fmt.Println("device key upgraded")
			return nil
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to derive the key from")
	return cmd
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	deaddrop "github.com/deaddrop/client-go"
)

func contactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Manage contacts",
	}
	cmd.AddCommand(
		contactAddCmd(),
		contactListCmd(),
		contactRemoveCmd(),
		contactExportCmd(),
		contactRotateCmd(),
	)
	return cmd
}

func contactAddCmd() *cobra.Command {
	var (
		key       string
		avatar    string
		generated bool
		asQR      bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a contact from shared key material",
		Long: "Adds a contact. With --key, imports material agreed with the peer; pass\n" +
			"--generated on the side that created it. Without --key, fresh material is\n" +
			"generated, printed for the peer and imported as generated.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			material := key
			if material == "" {
				material, err = deaddrop.GenerateKeyMaterial()
				if err != nil {
					return err
				}
				generated = true
			}

			contact, err := client.AddContact(cmd.Context(), args[0], avatar, material, generated)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s (%s)\n", contact.Name, contact.ID)
			if key == "" {
				fmt.Printf("Share this key material with them:\n%s\n", material)
				if asQR {
					return printQR(material)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "key material from the peer (omit to generate)")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar reference")
	cmd.Flags().BoolVar(&generated, "generated", false, "this side generated the key material")
	cmd.Flags().BoolVar(&asQR, "qr", false, "render generated material as a QR code")
	return cmd
}

func contactListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			contacts, err := client.Contacts(cmd.Context())
			if err != nil {
				return err
			}
			if len(contacts) == 0 {
				fmt.Println("No contacts yet. Add one with 'deaddrop contact add'.")
				return nil
			}
			for _, contact := range contacts {
				fmt.Printf("%s  %s  last active %s\n",
					contact.ID, contact.Name, contact.LastActive.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func contactRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <contact-id>",
		Short: "Delete a contact and its key",
		Long: "Deletes the contact, its key record and its group memberships. Messages\n" +
			"already exchanged stay in the log but can no longer be decrypted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := client.DeleteContact(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("removed")
			return nil
		},
	}
}

func contactExportCmd() *cobra.Command {
	var asQR bool

	cmd := &cobra.Command{
		Use:   "export <contact-id>",
		Short: "Print a contact's key material for sharing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			material, err := client.ExportContactKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(material)
			if asQR {
				return printQR(material)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asQR, "qr", false, "render the material as a QR code")
	return cmd
}

func contactRotateCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "rotate <contact-id>",
		Short: "Rotate a contact's shared key and re-encrypt history",
		Long: "Replaces the contact's key with new material and rewrites the stored\n" +
			"history under it. The peer must rotate with the same material before\n" +
			"messaging can resume.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			material := key
			if material == "" {
				material, err = deaddrop.GenerateKeyMaterial()
				if err != nil {
					return err
				}
			}

			result, err := client.RotateContactKey(cmd.Context(), args[0], material)
			if err != nil {
				return err
			}
			fmt.Printf("Rotated: %d messages re-encrypted, %d skipped\n", result.Reencrypted, result.Skipped)
			if key == "" {
				fmt.Printf("Share the new key material with the peer:\n%s\n", material)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "new key material agreed with the peer (omit to generate)")
	return cmd
}

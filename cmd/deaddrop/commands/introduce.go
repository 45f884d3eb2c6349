package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func introduceCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "introduce <recipient-id> <introduced-id>",
		Short: "Send a contact's key to another contact",
		Long: "Attaches the introduced contact's key material to a message so the\n" +
			"recipient can add them without an out-of-band exchange. The grant is\n" +
			"time-boxed and consumed on accept.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			msg, err := client.SendIntroduction(cmd.Context(), args[0], args[1], text)
			if err != nil {
				return err
			}
			fmt.Printf("introduced in %s\n", msg.Core().ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text to accompany the introduction")
	return cmd
}

func acceptCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "accept <message-id>",
		Short: "Import an introduced contact from a received message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			contact, err := client.AcceptIntroduction(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s (%s)\n", contact.Name, contact.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "contact name (default: the name the sender attached)")
	return cmd
}

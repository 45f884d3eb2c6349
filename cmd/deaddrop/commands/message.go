package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	deaddrop "github.com/deaddrop/client-go"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <contact-id> <text>",
		Short: "Send a direct message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			msg, err := client.SendMessage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if msg.Core().Pending {
				fmt.Printf("queued %s (relay unreachable, will retry on sync)\n", msg.Core().ID)
			} else {
				fmt.Printf("sent %s\n", msg.Core().ID)
			}
			return nil
		},
	}
}

func sendGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sendgroup <group-id> <text>",
		Short: "Send a message to every member of a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			msg, err := client.SendGroupMessage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if msg.Core().Pending {
				fmt.Printf("queued %s (some members unreachable, will retry on sync)\n", msg.Core().ID)
			} else {
				fmt.Printf("sent %s\n", msg.Core().ID)
			}
			return nil
		},
	}
}

func messagesCmd() *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List the local message log",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			all, err := client.Messages(cmd.Context())
			if err != nil {
				return err
			}
			shown := 0
			for _, msg := range all {
				if unreadOnly && msg.Core().Read {
					continue
				}
				printMessage(cmd.Context(), client, msg)
				shown++
			}
			if shown == 0 {
				fmt.Println("No messages.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "show unread messages only")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Mark a message as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return client.MarkRead(cmd.Context(), args[0])
		},
	}
}

func forwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward <message-id> <contact-id>",
		Short: "Forward a message to another contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			fwd, err := client.ForwardMessage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("forwarded as %s\n", fwd.Core().ID)
			return nil
		},
	}
}

func waitCmd() *cobra.Command {
	var (
		from     string
		contains string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until a matching message arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []deaddrop.WaitOption{deaddrop.WithWaitTimeout(timeout)}
			if from != "" {
				opts = append(opts, deaddrop.WithSender(from))
			}
			if contains != "" {
				opts = append(opts, deaddrop.WithTextContains(contains))
			}

			msg, err := client.WaitForMessage(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			printMessage(cmd.Context(), client, msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "match messages from this contact id")
	cmd.Flags().StringVar(&contains, "contains", "", "match messages containing this text")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait before giving up")
	return cmd
}

// printMessage renders one log entry: id, direction, flags, then the text if
// it still decrypts.
func printMessage(ctx context.Context, client *deaddrop.Client, msg deaddrop.Message) {
	core := msg.Core()

	var heading string
	switch v := msg.(type) {
	case *deaddrop.DirectSent:
		heading = fmt.Sprintf("to %s", v.RecipientID)
	case *deaddrop.DirectReceived:
		heading = fmt.Sprintf("from %s", v.SenderID)
	case *deaddrop.GroupSent:
		heading = fmt.Sprintf("to group %s", v.GroupID)
	case *deaddrop.GroupReceived:
		heading = fmt.Sprintf("from %s in group %s", v.SenderID, v.GroupID)
	case *deaddrop.ContextualReceived:
		heading = fmt.Sprintf("from %s in unknown group %q (%s)", v.SenderID, v.GroupContextName, v.GroupContextID)
	}

	var flags []string
	if core.Pending {
		flags = append(flags, "pending")
	}
	if !core.Read {
		flags = append(flags, "unread")
	}
	if core.Forwarded() {
		flags = append(flags, "forwarded")
	}
	if core.Attachment != nil {
		switch {
		case core.Attachment.IntroductionKey != nil:
			flags = append(flags, "introduction:"+core.Attachment.IntroductionKey.Name)
		case core.Attachment.FileTransfer != nil:
			flags = append(flags, "file:"+core.Attachment.FileTransfer.Metadata.Filename)
		}
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = "  [" + strings.Join(flags, ", ") + "]"
	}

	fmt.Printf("%s  %s  %s%s\n", core.ID, core.Timestamp.Local().Format("2006-01-02 15:04"), heading, suffix)

	text, err := client.DecryptMessage(ctx, msg)
	if err != nil {
		fmt.Println("    (no longer decryptable)")
		return
	}
	fmt.Printf("    %s\n", text)
}

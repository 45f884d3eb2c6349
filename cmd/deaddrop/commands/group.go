package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	deaddrop "github.com/deaddrop/client-go"
)

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}
	cmd.AddCommand(groupAddCmd(), groupListCmd(), groupRemoveCmd())
	return cmd
}

func groupAddCmd() *cobra.Command {
	var (
		id     string
		avatar string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <contact-id>...",
		Short: "Create a group of existing contacts",
		Long: "Creates a local group. Pass --id to adopt the group id announced by an\n" +
			"incoming group message, so further messages in that group land as group\n" +
			"messages instead of contextual ones.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var opts []deaddrop.GroupOption
			if id != "" {
				opts = append(opts, deaddrop.WithGroupID(id))
			}
			if avatar != "" {
				opts = append(opts, deaddrop.WithGroupAvatar(avatar))
			}

			group, err := client.AddGroup(cmd.Context(), args[0], args[1:], opts...)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s) with %d members\n", group.Name, group.ID, len(group.MemberIDs))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "explicit group id (from an announced group)")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar reference")
	return cmd
}

func groupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			groups, err := client.Groups(cmd.Context())
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No groups yet. Create one with 'deaddrop group add'.")
				return nil
			}
			for _, group := range groups {
				fmt.Printf("%s  %s  members: %s\n", group.ID, group.Name, strings.Join(group.MemberIDs, ", "))
			}
			return nil
		},
	}
}

func groupRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <group-id>",
		Short: "Delete a group (contacts are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := client.DeleteGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("removed")
			return nil
		},
	}
}

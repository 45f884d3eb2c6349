package commands

import (
	"github.com/spf13/cobra"
)

var (
	flagHome      string
	flagRelay     string
	flagAuthToken string
	flagVerbose   bool
)

// Execute builds the command tree and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:           "deaddrop",
		Short:         "Encrypted messaging over an untrusted relay",
		Long:          "deaddrop exchanges end-to-end encrypted messages through a relay that sees only opaque blobs at derived addresses.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flagHome, "home", "", "data directory (default ~/.deaddrop)")
	root.PersistentFlags().StringVar(&flagRelay, "relay", "", "relay base URL")
	root.PersistentFlags().StringVar(&flagAuthToken, "auth-token", "", "bearer token for gatewayed relays")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug detail to stderr")

	root.AddCommand(
		initCmd(),
		contactCmd(),
		groupCmd(),
		keyCmd(),
		sendCmd(),
		sendGroupCmd(),
		syncCmd(),
		messagesCmd(),
		readCmd(),
		forwardCmd(),
		waitCmd(),
		introduceCmd(),
		acceptCmd(),
		fileCmd(),
		upgradeCmd(),
	)
	return root.Execute()
}

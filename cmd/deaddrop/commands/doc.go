// Package commands defines the deaddrop CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init           Create the local store and device key
//   - contact        Manage contacts (add, list, remove, export, rotate)
//   - group          Manage groups (add, list, remove)
//   - key            Generate key material to share with a peer
//   - send           Send a direct message
//   - sendgroup      Send a message to every member of a group
//   - sync           Poll the relay for new messages and retry pending sends
//   - messages       List the local message log
//   - read           Mark a message as read
//   - forward        Forward a message to another contact
//   - wait           Block until a matching message arrives
//   - introduce      Send a contact's key to another contact
//   - accept         Import an introduced contact from a received message
//   - file           Mask, announce and unmask encrypted files
//   - upgrade        Derive the device key from a passphrase
//
// # Configuration
//
// Every command resolves its configuration from flags, then DEADDROP_*
// environment variables, then config.yaml in the data directory. The data
// directory defaults to ~/.deaddrop and holds the SQLite store next to the
// config file.
package commands

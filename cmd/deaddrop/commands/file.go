package commands

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	deaddrop "github.com/deaddrop/client-go"
)

func fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Mask, announce and unmask encrypted files",
		Long: "A masked file is an encrypted container under a random name, safe to\n" +
			"park on any host. The grant file produced next to it holds the key and\n" +
			"metadata; 'file announce' sends the grant to a contact over an encrypted\n" +
			"message and 'file unmask' reconstructs the original on their side.",
	}
	cmd.AddCommand(fileMaskCmd(), fileAnnounceCmd(), fileUnmaskCmd())
	return cmd
}

func fileMaskCmd() *cobra.Command {
	var (
		outDir    string
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "mask <path>",
		Short: "Encrypt a file into a masked container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			filename := filepath.Base(args[0])
			mimeType := mime.TypeByExtension(filepath.Ext(filename))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}

			var opts []deaddrop.FileOption
			if chunkSize > 0 {
				opts = append(opts, deaddrop.WithChunkSize(chunkSize))
			}
			file, err := deaddrop.EncryptFile(content, filename, mimeType, opts...)
			if err != nil {
				return err
			}

			containerPath := filepath.Join(outDir, file.Metadata.MaskedFilename)
			if err := os.WriteFile(containerPath, file.Container, 0o600); err != nil {
				return err
			}

			grant := deaddrop.FileTransferGrant{
				Metadata: file.Metadata,
				Key:      deaddrop.EncodeFileKey(file.Key),
			}
			grantJSON, err := json.MarshalIndent(grant, "", "  ")
			if err != nil {
				return err
			}
			grantPath := containerPath + ".grant.json"
			if err := os.WriteFile(grantPath, grantJSON, 0o600); err != nil {
				return err
			}

			fmt.Printf("Container: %s\n", containerPath)
			fmt.Printf("Grant:     %s (keep private; announce it to a contact)\n", grantPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the container and grant into")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "plaintext chunk size in bytes (default 1 MiB)")
	return cmd
}

func fileAnnounceCmd() *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "announce <contact-id> <grant-file>",
		Short: "Send a file grant to a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			grantJSON, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var grant deaddrop.FileTransferGrant
			if err := json.Unmarshal(grantJSON, &grant); err != nil {
				return fmt.Errorf("parse grant file: %w", err)
			}
			key, err := deaddrop.DecodeFileKey(grant.Key)
			if err != nil {
				return fmt.Errorf("parse grant file: %w", err)
			}

			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			file := &deaddrop.EncryptedFile{Metadata: grant.Metadata, Key: key}
			msg, err := client.SendFileAnnouncement(cmd.Context(), args[0], file, text)
			if err != nil {
				return err
			}
			fmt.Printf("announced %s in %s\n", grant.Metadata.Filename, msg.Core().ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "message text to accompany the announcement")
	return cmd
}

func fileUnmaskCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "unmask <message-id> <container-path>",
		Short: "Decrypt a container using a received file grant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			client, cleanup, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			file, err := client.DecryptAttachedFile(cmd.Context(), args[0], container)
			if err != nil {
				return err
			}

			outPath := filepath.Join(outDir, filepath.Base(file.Filename))
			if err := os.WriteFile(outPath, file.Content, 0o600); err != nil {
				return err
			}
			fmt.Printf("Restored %s (%s, %d bytes)\n", outPath, file.MimeType, len(file.Content))
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the restored file into")
	return cmd
}

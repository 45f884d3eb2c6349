package commands

import (
	"fmt"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	deaddrop "github.com/deaddrop/client-go"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Key material helpers",
	}
	cmd.AddCommand(keyGenerateCmd())
	return cmd
}

func keyGenerateCmd() *cobra.Command {
	var asQR bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate key material to share with a peer out of band",
		Long: "Generates fresh key material. Add it locally with 'contact add --key ... --generated'\n" +
			"and have the peer run 'contact add --key ...' with the same material.",
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := deaddrop.GenerateKeyMaterial()
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
	cmd.Flags().BoolVar(&asQR, "qr", false, "also render the material as a QR code")
	return cmd
}

func printQR(content string) error {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("render qr code: %w", err)
	}
	fmt.Println(qr.ToSmallString(false))
	return nil
}

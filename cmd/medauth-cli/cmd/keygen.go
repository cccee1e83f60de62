package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medauth/core/signer"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new issuer keypair (ECDSA P-256)",
	Run: func(cmd *cobra.Command, args []string) {
		privPath, _ := cmd.Flags().GetString("out")
		pubPath, _ := cmd.Flags().GetString("pubout")

		priv, err := signer.GenerateKeypair()
		if err != nil {
			fmt.Println("Key generation failed:", err)
			os.Exit(1)
		}
		if err := signer.SavePrivateKeyPEM(privPath, priv); err != nil {
			fmt.Println("Could not write private key:", err)
			os.Exit(1)
		}
		if err := signer.SavePublicKeyPEM(pubPath, &priv.PublicKey); err != nil {
			fmt.Println("Could not write public key:", err)
			os.Exit(1)
		}
		fmt.Printf("Issuer keypair written: %s (private, 0600), %s (public)\n", privPath, pubPath)
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().String("out", "issuer_key.pem", "Private key output path")
	keygenCmd.Flags().String("pubout", "issuer_key.pub.pem", "Public key output path")
}

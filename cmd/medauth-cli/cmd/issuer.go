package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medauth/cmd/medauth-cli/api"
)

var issuerCmd = &cobra.Command{
	Use:   "issuer",
	Short: "Issuer registry operations (register, revoke)",
}

var issuerRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an issuer public key",
	Run: func(cmd *cobra.Command, args []string) {
		issuerID, _ := cmd.Flags().GetString("id")
		pubPath, _ := cmd.Flags().GetString("pubkey")
		if issuerID == "" || pubPath == "" {
			fmt.Println("id and pubkey are required.")
			os.Exit(1)
		}
		pem, err := os.ReadFile(pubPath)
		if err != nil {
			fmt.Println("Cannot read public key:", err)
			os.Exit(1)
		}
		req := map[string]string{"issuerId": issuerID, "publicKeyPem": string(pem)}
		if err := api.PostJSON("/api/issuer/register", req, nil); err != nil {
			fmt.Println("Registration failed:", err)
			os.Exit(1)
		}
		fmt.Println("Issuer registered:", issuerID)
	},
}

var issuerRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an issuer (all keys, effective immediately)",
	Run: func(cmd *cobra.Command, args []string) {
		issuerID, _ := cmd.Flags().GetString("id")
		reason, _ := cmd.Flags().GetString("reason")
		if issuerID == "" {
			fmt.Println("id is required.")
			os.Exit(1)
		}
		req := map[string]string{"issuerId": issuerID, "reason": reason}
		if err := api.PostJSON("/api/issuer/revoke", req, nil); err != nil {
			fmt.Println("Revocation failed:", err)
			os.Exit(1)
		}
		fmt.Println("Issuer revoked:", issuerID)
	},
}

func init() {
	rootCmd.AddCommand(issuerCmd)
	issuerCmd.AddCommand(issuerRegisterCmd)
	issuerCmd.AddCommand(issuerRevokeCmd)
	issuerRegisterCmd.Flags().String("id", "", "Issuer ID (required)")
	issuerRegisterCmd.Flags().String("pubkey", "", "Public key PEM path (required)")
	issuerRevokeCmd.Flags().String("id", "", "Issuer ID (required)")
	issuerRevokeCmd.Flags().String("reason", "", "Revocation reason")
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medauth/cmd/medauth-cli/api"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [qr-record-file]",
	Short: "Verify a scanned QR record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Println("Cannot read QR record:", err)
			os.Exit(1)
		}
		asOf, _ := cmd.Flags().GetString("as-of")
		noLedger, _ := cmd.Flags().GetBool("no-ledger")

		ledgerCheck := !noLedger
		req := map[string]interface{}{
			"record":      json.RawMessage(data),
			"ledgerCheck": ledgerCheck,
		}
		if asOf != "" {
			req["asOf"] = asOf
		}

		var resp json.RawMessage
		if err := api.PostJSON("/api/qr/verify", req, &resp); err != nil {
			fmt.Println("Verification request failed:", err)
			os.Exit(1)
		}
		var pretty map[string]interface{}
		json.Unmarshal(resp, &pretty)
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("as-of", "", "Verification time (RFC3339, default now)")
	verifyCmd.Flags().Bool("no-ledger", false, "Skip the ledger anchoring check")
}

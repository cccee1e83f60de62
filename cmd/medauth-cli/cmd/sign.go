package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medauth/cmd/medauth-cli/api"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Issue a signed QR record for a medicine unit",
	Run: func(cmd *cobra.Command, args []string) {
		medicineID, _ := cmd.Flags().GetString("medicine")
		batchNo, _ := cmd.Flags().GetString("batch")
		mfgDate, _ := cmd.Flags().GetString("mfg")
		expiryDate, _ := cmd.Flags().GetString("expiry")
		issuerID, _ := cmd.Flags().GetString("issuer")
		keyRef, _ := cmd.Flags().GetString("key")
		if medicineID == "" || batchNo == "" || mfgDate == "" || expiryDate == "" || issuerID == "" {
			fmt.Println("medicine, batch, mfg, expiry and issuer are required.")
			os.Exit(1)
		}

		req := map[string]interface{}{
			"payload": map[string]string{
				"medicineId": medicineID,
				"batchNo":    batchNo,
				"mfgDate":    mfgDate,
				"expiryDate": expiryDate,
				"issuerId":   issuerID,
			},
		}
		if keyRef != "" {
			req["keyRef"] = keyRef
		}

		var resp struct {
			QRRecord    json.RawMessage `json:"qrRecord"`
			PayloadHash string          `json:"payloadHash"`
			AnchorRef   string          `json:"anchorRef"`
		}
		if err := api.PostJSON("/api/qr/sign", req, &resp); err != nil {
			fmt.Println("Signing failed:", err)
			os.Exit(1)
		}
		fmt.Println("Payload hash:", resp.PayloadHash)
		if resp.AnchorRef != "" {
			fmt.Println("Anchor ref:  ", resp.AnchorRef)
		}
		fmt.Println(string(resp.QRRecord))
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().String("medicine", "", "Medicine ID (required)")
	signCmd.Flags().String("batch", "", "Batch number (required)")
	signCmd.Flags().String("mfg", "", "Manufacture date YYYY-MM-DD (required)")
	signCmd.Flags().String("expiry", "", "Expiry date YYYY-MM-DD (required)")
	signCmd.Flags().String("issuer", "", "Issuer ID (required)")
	signCmd.Flags().String("key", "", "Named issuer key in the node's key directory")
}

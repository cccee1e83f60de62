package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medauth/cmd/medauth-cli/api"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Ledger anchoring operations (status, flush)",
}

var anchorStatusCmd = &cobra.Command{
	Use:   "status [hash]",
	Short: "Check whether a payload hash is anchored",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Hash              string `json:"hash"`
			Anchored          bool   `json:"anchored"`
			LedgerUnavailable bool   `json:"ledgerUnavailable"`
		}
		if err := api.GetJSON("/api/anchor/status?hash="+args[0], &resp); err != nil {
			fmt.Println("Status check failed:", err)
			os.Exit(1)
		}
		switch {
		case resp.LedgerUnavailable:
			fmt.Println("Ledger unreachable, no answer for", resp.Hash)
		case resp.Anchored:
			fmt.Println("Anchored:", resp.Hash)
		default:
			fmt.Println("Not anchored:", resp.Hash)
		}
	},
}

var anchorFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drain the pending anchor queue in one batch",
	Run: func(cmd *cobra.Command, args []string) {
		var resp json.RawMessage
		if err := api.PostJSON("/api/anchor/flush", map[string]string{}, &resp); err != nil {
			fmt.Println("Flush failed:", err)
			os.Exit(1)
		}
		var pretty map[string]interface{}
		json.Unmarshal(resp, &pretty)
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorStatusCmd)
	anchorCmd.AddCommand(anchorFlushCmd)
}

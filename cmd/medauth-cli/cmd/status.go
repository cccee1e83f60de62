package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medauth/cmd/medauth-cli/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status",
	Run: func(cmd *cobra.Command, args []string) {
		status, err := api.GetStatus()
		if err != nil {
			fmt.Println("Could not reach node:", err)
			os.Exit(1)
		}
		fmt.Println(status.ToJSON())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "medauth",
	Short: "Medicine QR authentication CLI",
	Long:  "A command-line tool for issuing, verifying and managing signed medicine QR codes against a medauth node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

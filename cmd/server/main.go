package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sponsorrail",
	Short: "Gas-sponsored kiosk and credential issuance",
	Long: `sponsorrail provisions kiosks and issues credentials on behalf of users,
paying every transaction fee from a single sponsor account.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

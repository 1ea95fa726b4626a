package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rpld",
	Short: "RPL Routing Daemon",
	Long: `rpld is an implementation of RPL, the IPv6 Routing Protocol for Low-Power and Lossy Networks (RFC 6550).
It builds a DODAG towards one or more roots and installs downward routes learned from storing mode DAOs.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize rpld",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "rpl",
		Title: "rpld Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&nodeConfigPath, "node-config", "n", DefaultNodeConfigPath, "node-specific config")
}

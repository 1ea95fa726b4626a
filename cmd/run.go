package cmd

import (
	"github.com/encodeous/rpld/core"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run rpld",
	Long:  `This will run rpld on the current host. It needs permission to open a raw ICMPv6 socket and, unless no_net_configure is set, to change the routing table.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logPath, _ := cmd.Flags().GetString("log")
		debugAddr, _ := cmd.Flags().GetString("debug")

		err := core.Bootstrap(nodeConfigPath, logPath, debugAddr, verbose)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "rpl",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringP("log", "l", "", "Also write logs to this file")
	runCmd.Flags().String("debug", "", "Serve pprof on this address, e.g. localhost:6060")
}

package cmd

import (
	"fmt"
	"strconv"

	"github.com/encodeous/rpld/core"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Inspects the current state of rpld",
	Run: func(cmd *cobra.Command, args []string) {
		ctl, _ := cmd.Flags().GetString("ctl")
		result, err := core.IPCGet(ctlPath(ctl), "inspect")
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
	GroupID: "rpl",
}

var repairCmd = &cobra.Command{
	Use:   "repair [instance id]",
	Short: "Starts a global repair of a DODAG this node is root of",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			fail(fmt.Errorf("invalid instance id %q", args[0]))
		}
		ctl, _ := cmd.Flags().GetString("ctl")
		result, err := core.IPCGet(ctlPath(ctl), fmt.Sprintf("repair %d", id))
		if err != nil {
			fail(err)
		}
		fmt.Print(result)
	},
	GroupID: "rpl",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(repairCmd)
	for _, c := range []*cobra.Command{inspectCmd, repairCmd} {
		c.Flags().StringP("ctl", "s", "", "Path to the control socket, defaults to ctl_path of the node config")
	}
}

package cmd

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/encodeous/rpld/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a node configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			_ = cmd.Usage()
			return
		}

		name := args[0]
		err := state.NameValidator(name)
		if err != nil {
			fmt.Printf("Invalid name: %s\n", name)
			os.Exit(-1)
		}

		addrStr, _ := cmd.Flags().GetString("address")
		addr, err := netip.ParseAddr(addrStr)
		if err != nil {
			fail(fmt.Errorf("invalid address: %w", err))
		}
		itf, _ := cmd.Flags().GetString("interface")
		instance, _ := cmd.Flags().GetUint8("instance")

		nodeCfg := state.LocalCfg{
			Id:            name,
			Address:       addr,
			InterfaceName: itf,
			CtlPath:       DefaultCtlPath,
			Instances: []state.InstanceCfg{
				{InstanceId: instance},
			},
		}

		if prefixStr, _ := cmd.Flags().GetString("root"); prefixStr != "" {
			prefix, err := netip.ParsePrefix(prefixStr)
			if err != nil {
				fail(fmt.Errorf("invalid prefix: %w", err))
			}
			nodeCfg.Instances[0] = state.InstanceCfg{
				InstanceId:        instance,
				Root:              true,
				Prefix:            prefix.Masked(),
				PrefixFlags:       0x40,
				ValidLifetime:     0xFFFFFFFF,
				PreferredLifetime: 0xFFFFFFFF,
				Grounded:          true,
			}
		}

		err = state.NodeConfigValidator(&nodeCfg)
		if err != nil {
			fail(err)
		}

		ncfg, err := yaml.Marshal(&nodeCfg)
		if err != nil {
			panic(err)
		}

		outPath := cmd.Flag("output").Value.String()
		err = os.WriteFile(outPath, ncfg, 0600)
		if err != nil {
			panic(err)
		}
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "node.yaml", "Output file path")
	newCmd.Flags().StringP("address", "a", "", "IPv6 address of the node")
	newCmd.Flags().StringP("interface", "i", "eth0", "Interface RPL runs on")
	newCmd.Flags().Uint8("instance", 1, "RPL instance id")
	newCmd.Flags().StringP("root", "r", "", "Make this node the root of the instance, advertising this prefix")
	_ = newCmd.MarkFlagRequired("address")
}

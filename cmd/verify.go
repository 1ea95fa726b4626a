package cmd

import (
	"fmt"

	"github.com/encodeous/rpld/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the node config",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadNodeConfig()
		if err != nil {
			fail(err)
		}
		err = state.NodeConfigValidator(cfg)
		if err != nil {
			fail(err)
		}

		cfgYaml, err := yaml.Marshal(cfg)
		if err != nil {
			panic(err)
		}

		fmt.Println("Config is valid")
		fmt.Println(string(cfgYaml))
	},
	GroupID: "rpl",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

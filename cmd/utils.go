package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/rpld/core"
	"github.com/encodeous/rpld/state"
)

const DefaultNodeConfigPath = "/etc/rpld/node.yaml"
const DefaultCtlPath = "/run/rpld.sock"

var nodeConfigPath = DefaultNodeConfigPath

// ctlPath resolves the control socket of the daemon, preferring an explicit flag over the node config
func ctlPath(flag string) string {
	if flag != "" {
		return flag
	}
	cfg, err := core.ReadNodeConfig(nodeConfigPath)
	if err == nil && cfg.CtlPath != "" {
		return cfg.CtlPath
	}
	return DefaultCtlPath
}

func loadNodeConfig() (*state.LocalCfg, error) {
	cfg, err := core.ReadNodeConfig(nodeConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", nodeConfigPath, err)
	}
	return cfg, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(1)
}

package command

import (
	"github.com/spf13/cobra"

	"github.com/frostnetworks/frost/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for frost.
var RootCmd = &cobra.Command{
	Use:   "frost",
	Short: "frost consensus node",
	Long: `frost consensus node

Drives a set of mutually-authenticated peers to agreement on which peers are
live, which cell transactions are final, and which block at each height is
canonical.`,
}

func init() {
	RootCmd.PersistentFlags().StringP("datadir", "d", _config.DataDir, "Top-level directory for configuration and data")
	RootCmd.PersistentFlags().String("log", _config.LogLevel, "Log level (debug, info, warn, error, fatal, panic)")
}

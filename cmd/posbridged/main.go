//go:build linux

// posbridged connects the POS application to the receipt printer and the
// order alert backends. It serves the bridge protocol on a unix socket and
// takes push events on an optional HTTP webhook.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
	pushListen string
	logLevel   string
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posbridged",
		Short: "Printer and order alert daemon for the POS application",
		Long: `posbridged owns the Bluetooth receipt printer connection and the order
alert (looping alarm, persistent notification, volume lock). The POS
application talks to it over a unix socket; push events arrive on the
webhook.`,
		Example: `  posbridged
  posbridged --config /etc/posbridge/config.json
  posbridged --push-listen "" --log-level debug`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runDaemon,
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/posbridge/config.json)")
	cmd.Flags().StringVar(&socketPath, "socket", "", "Bridge socket path (overrides config)")
	cmd.Flags().StringVar(&pushListen, "push-listen", "", "Push webhook address, empty to disable (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	return cmd
}

// posctl talks to a running posbridged over its unix socket.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"posbridge/internal/config"
)

var (
	socketPath string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "posctl",
		Short:         "Control the posbridged printer and alert daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&socketPath, "socket", "s", config.SocketPath(), "posbridged socket")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(
		callCommand(),
		statusCommand(),
		devicesCommand(),
		connectCommand(),
		disconnectCommand(),
		printCommand(),
		alarmCommand(),
		notifyCommand(),
		lockCommand(),
		soundsCommand(),
		pushCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

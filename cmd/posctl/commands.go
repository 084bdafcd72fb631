package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"posbridge/internal/bridge"
)

// invoke calls method and prints its result as JSON. A false result is
// reported as an error so scripts can test the exit status.
func invoke(cmd *cobra.Command, method string, args any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	resp, err := bridge.Call(ctx, socketPath, method, args)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: %s", method, resp.Error)
	}
	if len(resp.Result) == 0 {
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, resp.Result, "", "  "); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())
	if string(resp.Result) == "false" {
		return fmt.Errorf("%s failed", method)
	}
	return nil
}

// parsePairs turns key=value arguments into a payload.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}

func callCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [json-args]",
		Short: "Call any bridge method",
		Example: `  posctl call isConnected
  posctl call setVolumeLock '{"locked":true}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments are not valid JSON")
				}
				params = json.RawMessage(args[1])
			}
			return invoke(cmd, args[0], params)
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show printer and alarm state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, "status", nil)
		},
	}
}

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List paired Bluetooth devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, "getBondedDevices", nil)
		},
	}
}

func connectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "connect <address>",
		Short:   "Connect to a paired printer",
		Example: `  posctl connect 00:11:22:33:44:55`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, "connect", map[string]string{"address": args[0]})
		},
	}
}

func disconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Close the printer connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, "disconnect", nil)
		},
	}
}

func printCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "print [file]",
		Short: "Send raw bytes to the printer",
		Long:  `Send a file, or standard input, to the connected printer unchanged.`,
		Example: `  posctl print receipt.bin
  printf '\x1b@hello\n' | posctl print`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			return invoke(cmd, "write", map[string][]byte{"data": data})
		},
	}
}

func alarmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarm",
		Short: "Start or stop the order alarm",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "start",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return invoke(cmd, "startAlarm", nil)
			},
		},
		&cobra.Command{
			Use:  "stop",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return invoke(cmd, "stopAlarm", nil)
			},
		},
	)
	return cmd
}

func notifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Show or cancel order notifications",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "show key=value...",
			Example: `  posctl notify show invoice_id=SINV-1 customer_name=Omar grand_total=250`,
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := parsePairs(args)
				if err != nil {
					return err
				}
				return invoke(cmd, "showNotification", map[string]any{"data": data})
			},
		},
		&cobra.Command{
			Use:  "cancel [invoice-id]",
			Args: cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var id string
				if len(args) == 1 {
					id = args[0]
				}
				return invoke(cmd, "cancelNotification", map[string]string{"invoiceId": id})
			},
		},
		&cobra.Command{
			Use:   "launch",
			Short: "Take the payload of the last activated notification",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return invoke(cmd, "consumeLaunchPayload", nil)
			},
		},
	)
	return cmd
}

func lockCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "lock [on|off]",
		Short:     "Show or set the volume lock",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return invoke(cmd, "isVolumeLocked", nil)
			}
			switch args[0] {
			case "on", "off":
				return invoke(cmd, "setVolumeLock", map[string]bool{"locked": args[0] == "on"})
			}
			return fmt.Errorf("expected on or off, got %q", args[0])
		},
	}
}

func soundsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sounds",
		Short: "List, select or preview alarm tones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, "getAvailableAlarmSounds", nil)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [uri]",
			Short: "Select the alarm tone; no uri restores the default",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var uri string
				if len(args) == 1 {
					uri = args[0]
				}
				return invoke(cmd, "setAlarmSound", map[string]string{"uri": uri})
			},
		},
		&cobra.Command{
			Use:  "preview <uri>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return invoke(cmd, "previewAlarmSound", map[string]string{"uri": args[0]})
			},
		},
		&cobra.Command{
			Use:  "stop",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return invoke(cmd, "stopPreview", nil)
			},
		},
	)
	return cmd
}

func pushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "push <type> [key=value...]",
		Short: "Deliver a push event as if it came from the backend",
		Example: `  posctl push new_invoice invoice_id=SINV-1 customer_name=Omar
  posctl push invoice_accepted invoice_id=SINV-1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parsePairs(args[1:])
			if err != nil {
				return err
			}
			return invoke(cmd, "push", map[string]any{"type": args[0], "data": data})
		},
	}
}

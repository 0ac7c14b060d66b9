package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// driveCmd sets one output channel
var driveCmd = &cobra.Command{
	Use:   "drive [flags] <hub-address> <channel> <value>",
	Short: "Set one output channel",
	Long: fmt.Sprintf(`Sets output channel 0-3 of a hub. Values are clamped to -255..255; the sign
selects the direction.

Flags must come before the hub address so that negative values are not read as flags.

Examples:
  brickd drive %s 2 -130
  brickd drive --timeout 2s %s 0 255`, exampleHubAddress, exampleHubAddress),
	Args: cobra.ExactArgs(3),
	RunE: runDrive,
}

// quickDriveCmd sets all four channels in one write
var quickDriveCmd = &cobra.Command{
	Use:   "quickdrive [flags] <hub-address> <v1> <v2> <v3> <v4>",
	Short: "Set all four output channels in one write",
	Long: fmt.Sprintf(`Sets all four output channels of a hub with a single quick drive write.

Examples:
  # Stop everything
  brickd quickdrive %s 0 0 0 0

  brickd quickdrive %s 255 -10 0 -255`, exampleHubAddress, exampleHubAddress),
	Args: cobra.ExactArgs(5),
	RunE: runQuickDrive,
}

func init() {
	driveCmd.Flags().SetInterspersed(false)
	quickDriveCmd.Flags().SetInterspersed(false)
}

func runDrive(cmd *cobra.Command, args []string) error {
	address := args[0]
	values, err := parseInts(args[1:], "channel", "value")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(cmd.Context(), address); err != nil {
		return err
	}
	h, err := a.hub(address)
	if err != nil {
		return err
	}

	since := time.Now()
	if err := a.registry.SendChannelCommand(address, values[0], values[1]); err != nil {
		return err
	}
	if err := a.waitWrite(cmd.Context(), h, since); err != nil {
		return err
	}

	value, _ := h.Channel(values[0])
	fmt.Fprintf(cmd.OutOrStdout(), "%s channel %d set to %d\n", h.Name(), values[0], value)
	return nil
}

func runQuickDrive(cmd *cobra.Command, args []string) error {
	address := args[0]
	values, err := parseInts(args[1:], "v1", "v2", "v3", "v4")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(cmd.Context(), address); err != nil {
		return err
	}
	h, err := a.hub(address)
	if err != nil {
		return err
	}

	since := time.Now()
	if err := a.registry.SendQuickDrive(address, values[0], values[1], values[2], values[3]); err != nil {
		return err
	}
	if err := a.waitWrite(cmd.Context(), h, since); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s channels set to %v\n", h.Name(), h.Channels())
	return nil
}

// parseInts converts args to integers, naming the offending argument on failure
func parseInts(args []string, names ...string) ([]int, error) {
	out := make([]int, len(args))
	for i, s := range args {
		v, err := strconv.Atoi(s)
		if err != nil {
			name := fmt.Sprintf("argument %d", i+1)
			if i < len(names) {
				name = names[i]
			}
			return nil, fmt.Errorf("invalid %s %q: must be an integer", name, s)
		}
		out[i] = v
	}
	return out, nil
}

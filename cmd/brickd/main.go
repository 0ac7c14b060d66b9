package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "brickd",
	Short: "SBrick hub command dispatcher",
	Long: `Drives SBrick BLE hubs through flow-controlled command queues:

- Keep a registry of known hubs and their display names
- Set a single output channel or all four at once
- Read device information characteristics
- Drive several hubs from an interactive console

Every hub has at most one write awaiting acknowledgment; commands queue
behind it and are sent in order.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("brickd %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(hubsCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(quickDriveCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(consoleCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML); defaults apply when absent")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Shortcut for --log-level debug")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Second, "How long to wait for a hub to acknowledge")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

package main

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/srg/brickd/internal/command"
)

// readCmd reads one device information characteristic
var readCmd = &cobra.Command{
	Use:   "read <hub-address> <characteristic>",
	Short: "Read a device information characteristic",
	Long: fmt.Sprintf(`Reads a device information characteristic from a hub.

Characteristics: %s

Examples:
  brickd read %s firmware-revision`, readableNames(), exampleHubAddress),
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]
	c, err := command.ParseCharacteristic(args[1])
	if err != nil {
		return err
	}
	if !c.Readable() {
		return fmt.Errorf("characteristic %s cannot be read (choose one of: %s)", c, readableNames())
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

	if err := a.registry.ReadCharacteristic(address, c); err != nil {
		return err
	}
	data, err := a.waitRead(cmd.Context(), h, c)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c, formatValue(data))
	return nil
}

// formatValue prints text characteristics as text and anything else as hex
func formatValue(data []byte) string {
	s := string(data)
	if s == "" {
		return "(empty)"
	}
	for _, r := range s {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return fmt.Sprintf("% X", data)
		}
	}
	return s
}

func readableNames() string {
	var names []string
	for _, c := range command.ReadableCharacteristics() {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

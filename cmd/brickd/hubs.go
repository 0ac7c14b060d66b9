package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/brickd/internal/hub"
)

const exampleHubAddress = "00:07:80:d0:57:32"

// hubsCmd groups the registry maintenance subcommands
var hubsCmd = &cobra.Command{
	Use:   "hubs",
	Short: "Manage the registry of known hubs",
}

var hubsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered hubs",
	Args:  cobra.NoArgs,
	RunE:  runHubsList,
}

var hubsAddCmd = &cobra.Command{
	Use:   "add <hub-address> [name]",
	Short: "Register a hub",
	Long: fmt.Sprintf(`Registers a hub under an optional display name. Adding a known hub renames it.

Examples:
  brickd hubs add %s Crane`, exampleHubAddress),
	Args: cobra.RangeArgs(1, 2),
	RunE: runHubsAdd,
}

var hubsRenameCmd = &cobra.Command{
	Use:   "rename <hub-address> <name>",
	Short: "Change the display name of a registered hub",
	Args:  cobra.ExactArgs(2),
	RunE:  runHubsRename,
}

var hubsForgetCmd = &cobra.Command{
	Use:   "forget <hub-address>",
	Short: "Remove a hub from the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runHubsForget,
}

func init() {
	hubsCmd.AddCommand(hubsListCmd)
	hubsCmd.AddCommand(hubsAddCmd)
	hubsCmd.AddCommand(hubsRenameCmd)
	hubsCmd.AddCommand(hubsForgetCmd)
}

func runHubsList(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	printHubs(cmd.OutOrStdout(), a.registry.Hubs(), false)
	return nil
}

func runHubsAdd(cmd *cobra.Command, args []string) error {
	address := args[0]
	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	cmd.SilenceUsage = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.registry.Add(address, name)
	if err != nil {
		return err
	}
	if err := a.registry.Save(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s\n", address, h.Name())
	return nil
}

func runHubsRename(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.registry.Rename(args[0], args[1]); err != nil {
		return err
	}
	if err := a.registry.Save(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[0], args[1])
	return nil
}

func runHubsForget(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.hub(args[0]); err != nil {
		return err
	}
	a.registry.Forget(args[0])
	if err := a.registry.Save(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
	return nil
}

// printHubs writes one line per hub; live adds connection state and channel values
func printHubs(w io.Writer, hubs []hub.Info, live bool) {
	if len(hubs) == 0 {
		fmt.Fprintln(w, "No hubs registered")
		return
	}

	addr := color.New(color.FgCyan).SprintFunc()
	up := color.New(color.FgGreen).SprintFunc()
	down := color.New(color.FgRed).SprintFunc()

	for i, info := range hubs {
		if !live {
			fmt.Fprintf(w, "%d. %s  %s\n", i+1, addr(info.Address), info.Name)
			continue
		}

		state := down("disconnected")
		if info.Connected {
			state = up("connected")
		}
		fmt.Fprintf(w, "%d. %s  %s  %s  %v\n", i+1, addr(info.Address), info.Name, state, info.Channels)
	}
}

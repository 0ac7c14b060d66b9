package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/brickd/internal/command"
	"github.com/srg/brickd/internal/hub"
	"golang.org/x/term"
)

const consolePrompt = "brickd> "

// consoleCmd drives several hubs interactively
var consoleCmd = &cobra.Command{
	Use:   "console <hub-address>...",
	Short: "Drive hubs from an interactive console",
	Long: fmt.Sprintf(`Connects to every given hub and reads commands line by line.
Hubs can be referred to by address, display name or list number.

Commands:
  hubs                          list hubs with connection state and channel values
  drive <hub> <channel> <value> set one channel
  quick <hub> <v1> <v2> <v3> <v4>
                                set all four channels
  stop [hub]                    set every channel of one or all hubs to 0
  read <hub> <characteristic>   read a device information characteristic
  help                          show this list
  quit                          leave the console

Examples:
  brickd console %s`, exampleHubAddress),
	Args: cobra.MinimumNArgs(1),
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(ctx, args...); err != nil {
		return err
	}

	s := &consoleSession{app: a, out: cmd.OutOrStdout()}

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return s.runTerminal(ctx, f)
	}
	return s.runLines(ctx, cmd.InOrStdin())
}

// consoleSession executes console lines against a running app
type consoleSession struct {
	app *app
	out io.Writer
}

// runTerminal reads lines with editing and history from a raw-mode terminal
func (s *consoleSession) runTerminal(ctx context.Context, f *os.File) error {
	oldState, err := term.MakeRaw(int(f.Fd()))
	if err != nil {
		return fmt.Errorf("failed to set terminal raw mode: %w", err)
	}
	defer func() { _ = term.Restore(int(f.Fd()), oldState) }()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{f, s.out}, consolePrompt)
	s.out = t

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := t.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit := s.execute(ctx, line); quit {
			return nil
		}
	}
}

// runLines reads commands from a pipe or file, one per line
func (s *consoleSession) runLines(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if quit := s.execute(ctx, scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

// execute runs one line and reports whether the console should exit
func (s *consoleSession) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch verb, args := strings.ToLower(fields[0]), fields[1:]; verb {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(s.out, "commands: hubs, drive, quick, stop, read, help, quit")
	case "hubs":
		printHubs(s.out, s.app.registry.Hubs(), true)
	case "drive":
		err = s.drive(args)
	case "quick":
		err = s.quick(args)
	case "stop":
		err = s.stop(args)
	case "read":
		err = s.read(ctx, args)
	default:
		err = fmt.Errorf("unknown command %q (try 'help')", verb)
	}

	if err != nil {
		fmt.Fprintf(s.out, "error: %s\n", FormatUserError(err))
	}
	return false
}

func (s *consoleSession) drive(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: drive <hub> <channel> <value>")
	}
	h, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	v, err := parseInts(args[1:], "channel", "value")
	if err != nil {
		return err
	}
	if err := h.SendChannelCommand(v[0], v[1]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "queued %s channel %d = %d\n", h.Name(), v[0], command.Clamp(v[1]))
	return nil
}

func (s *consoleSession) quick(args []string) error {
	if len(args) != 5 {
		return errors.New("usage: quick <hub> <v1> <v2> <v3> <v4>")
	}
	h, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	v, err := parseInts(args[1:], "v1", "v2", "v3", "v4")
	if err != nil {
		return err
	}
	if err := h.SendQuickDrive(v[0], v[1], v[2], v[3]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "queued %s quick drive\n", h.Name())
	return nil
}

func (s *consoleSession) stop(args []string) error {
	if len(args) > 1 {
		return errors.New("usage: stop [hub]")
	}

	var targets []*hub.Hub
	if len(args) == 1 {
		h, err := s.resolve(args[0])
		if err != nil {
			return err
		}
		targets = append(targets, h)
	} else {
		for _, address := range s.app.registry.Addresses() {
			if h, ok := s.app.registry.Hub(address); ok && h.Connected() {
				targets = append(targets, h)
			}
		}
	}

	var errs []error
	for _, h := range targets {
		if err := h.SendQuickDrive(0, 0, 0, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
			continue
		}
		fmt.Fprintf(s.out, "queued %s stop\n", h.Name())
	}
	return errors.Join(errs...)
}

func (s *consoleSession) read(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: read <hub> <characteristic>")
	}
	h, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	c, err := command.ParseCharacteristic(args[1])
	if err != nil {
		return err
	}
	if err := h.ReadCharacteristic(c); err != nil {
		return err
	}
	data, err := s.app.waitRead(ctx, h, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s: %s\n", h.Name(), c, formatValue(data))
	return nil
}

// resolve finds a hub by list number, address or display name
func (s *consoleSession) resolve(ref string) (*hub.Hub, error) {
	addresses := s.app.registry.Addresses()

	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(addresses) {
		ref = addresses[n-1]
	}
	if h, ok := s.app.registry.Hub(ref); ok {
		return h, nil
	}
	for _, address := range addresses {
		if h, ok := s.app.registry.Hub(address); ok && strings.EqualFold(h.Name(), ref) {
			return h, nil
		}
	}
	return s.app.hub(ref)
}

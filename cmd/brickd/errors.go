package main

import (
	"errors"
	"fmt"

	"github.com/srg/brickd/internal/dispatch"
	"github.com/srg/brickd/internal/hub"
	"github.com/srg/brickd/internal/registry"
	"github.com/srg/brickd/internal/store"
	"github.com/srg/brickd/internal/transport/goble"
)

// Command-level errors
var (
	// ErrNoAcknowledgment means the command was sent but the hub never confirmed it
	ErrNoAcknowledgment = errors.New("no acknowledgment from hub")
)

// FormatUserError turns an error chain into a one-line message with a hint
// for the failures a user can act on
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var pe *store.PersistenceError
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and retry"
	case errors.Is(err, goble.ErrNotABrick):
		return fmt.Sprintf("%v (is it an SBrick?)", err)
	case errors.Is(err, registry.ErrUnknownHub):
		return fmt.Sprintf("%v (see 'brickd hubs list')", err)
	case errors.Is(err, hub.ErrNotConnected):
		return "hub is not connected"
	case errors.Is(err, dispatch.ErrQueueFull):
		return "command queue is full; the hub is not keeping up"
	case errors.Is(err, ErrNoAcknowledgment):
		return fmt.Sprintf("%v; the hub may be out of range", err)
	case errors.As(err, &pe):
		return fmt.Sprintf("hub registry %s failed for %s: %v", pe.Op, pe.Path, pe.Err)
	default:
		return err.Error()
	}
}

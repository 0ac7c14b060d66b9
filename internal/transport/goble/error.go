package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/brickd/internal/hub"
)

var (
	ErrBluetoothOff           = errors.New("bluetooth is turned off")
	ErrAlreadyConnected       = errors.New("hub already connected")
	ErrNotABrick              = errors.New("device does not expose the remote control service")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrUnsupportedPlatform    = errors.New("no BLE device support on this platform")
)

// NormalizeError maps known go-ble error strings to the sentinel set, keeping
// the original error as context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", hub.ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}
